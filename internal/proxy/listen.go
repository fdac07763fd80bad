package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"
)

// ListenTCP listens on an IPv4 address and returns a net.Listener that
// applies keepAliveConfig to accepted TCP connections. An address without
// a port uses DefaultPort.
func ListenTCP(addr string, keepAliveConfig net.KeepAliveConfig) (net.Listener, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPort))
	}

	lc := net.ListenConfig{}

	ln, err := lc.Listen(context.Background(), "tcp4", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp4 %s: %w", addr, err)
	}

	return &KeepAliveListener{Listener: ln, KeepAliveConfig: keepAliveConfig}, nil
}

// KeepAliveListener wraps a net.Listener and applies KeepAliveConfig to any
// accepted *net.TCPConn.
type KeepAliveListener struct {
	net.Listener
	net.KeepAliveConfig
}

// Accept accepts the next connection and applies KeepAliveConfig if the
// connection is a *net.TCPConn.
func (l *KeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	tc, ok := conn.(*net.TCPConn)
	if ok {
		_ = tc.SetKeepAliveConfig(l.KeepAliveConfig)
	}

	return conn, nil
}

// readTimeoutConn arms a fresh read deadline before every Read, so a
// client that goes quiet surfaces as os.ErrDeadlineExceeded instead of
// blocking its goroutine indefinitely. A deadline set explicitly through
// SetReadDeadline or SetDeadline takes precedence until it is cleared.
type readTimeoutConn struct {
	net.Conn
	timeout time.Duration
	pinned  atomic.Bool
}

func (c *readTimeoutConn) Read(p []byte) (int, error) {
	if !c.pinned.Load() {
		_ = c.Conn.SetReadDeadline(time.Now().Add(c.timeout))
	}
	return c.Conn.Read(p)
}

func (c *readTimeoutConn) SetReadDeadline(t time.Time) error {
	c.pinned.Store(!t.IsZero())
	return c.Conn.SetReadDeadline(t)
}

func (c *readTimeoutConn) SetDeadline(t time.Time) error {
	c.pinned.Store(!t.IsZero())
	return c.Conn.SetDeadline(t)
}

func isTimeout(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded)
}
