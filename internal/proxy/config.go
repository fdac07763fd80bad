package proxy

import (
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/die-net/sockd/internal/auth"
	"github.com/die-net/sockd/internal/dialer"
)

const (
	DefaultPort              = 1080
	DefaultClientReadTimeout = 5 * time.Second
	DefaultDrainTimeout      = 10 * time.Second
	DefaultDialTimeout       = 10 * time.Second

	relayBufferSize = 4096
)

type Config struct {
	Logger zerolog.Logger

	// Registry selects and runs client authentication.
	Registry *auth.Registry

	Dialer      dialer.Dialer
	DialTimeout time.Duration

	// ClientReadTimeout bounds every read from a client socket.
	ClientReadTimeout time.Duration

	// DrainTimeout is how long Close waits for connections before forcing
	// their sockets closed.
	DrainTimeout time.Duration

	KeepAlive net.KeepAliveConfig
}

func (c Config) withDefaults() Config {
	if c.Registry == nil {
		c.Registry = auth.NewRegistry(auth.NoAuthMethod(true))
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.Dialer == nil {
		c.Dialer = dialer.NewDirectDialer(dialer.Config{DialTimeout: c.DialTimeout, KeepAlive: c.KeepAlive})
	}
	if c.ClientReadTimeout <= 0 {
		c.ClientReadTimeout = DefaultClientReadTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	return c
}
