package dialer

import (
	"context"
	"fmt"
	"net"

	"github.com/die-net/sockd/internal/socks5"
	"github.com/die-net/sockd/internal/workpool"
)

// SOCKS5ProxyDialer reaches destinations through an upstream SOCKS5 proxy.
type SOCKS5ProxyDialer struct {
	direct    Dialer
	proxyAddr string
	auth      socks5.Auth
}

func NewSOCKS5ProxyDialer(cfg Config, proxyAddr string, auth socks5.Auth) Dialer {
	return &SOCKS5ProxyDialer{direct: NewDirectDialer(cfg), proxyAddr: proxyAddr, auth: auth}
}

func (f *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}

	conn, err := f.direct.DialContext(ctx, "tcp", f.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}

	// Abort the handshake if ctx ends before the upstream answers.
	stop := workpool.CloseOnCancel(ctx, conn)
	err = socks5.ClientDial(conn, f.auth, address)
	if !stop() {
		_ = conn.Close()
		return nil, fmt.Errorf("socks5 proxy dial %s %s: %w", network, address, context.Cause(ctx))
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("socks5 proxy dial %s %s: %w", network, address, err)
	}
	return conn, nil
}
