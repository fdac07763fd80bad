package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTune is wrapped when a connection was established but could not be
// configured. The connection has already been closed.
var ErrTune = errors.New("socket tuning failed")

type directDialer struct {
	cfg Config
}

// NewDirectDialer returns a Dialer that connects straight to the
// destination and tunes the resulting TCP socket.
func NewDirectDialer(cfg Config) Dialer {
	return &directDialer{cfg: cfg}
}

func (f *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	dd := net.Dialer{Timeout: f.cfg.DialTimeout, KeepAliveConfig: f.cfg.KeepAlive}

	conn, err := dd.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tune(tc, f.cfg); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("dial %s %s: %w: %w", network, address, ErrTune, err)
		}
	}

	return conn, nil
}

// tune turns off lingering on close and Nagle's algorithm, enables
// keep-alive, and applies platform specific options.
func tune(tc *net.TCPConn, cfg Config) error {
	if err := tc.SetLinger(-1); err != nil {
		return fmt.Errorf("linger: %w", err)
	}
	if err := tc.SetNoDelay(true); err != nil {
		return fmt.Errorf("nodelay: %w", err)
	}
	ka := cfg.KeepAlive
	if !ka.Enable && ka.Idle == 0 && ka.Interval == 0 && ka.Count == 0 {
		ka.Enable = true
	}
	if err := tc.SetKeepAliveConfig(ka); err != nil {
		return fmt.Errorf("keepalive: %w", err)
	}
	return tunePlatform(tc)
}
