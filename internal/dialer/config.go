package dialer

import (
	"net"
	"time"
)

// Config controls outbound connections.
type Config struct {
	DialTimeout time.Duration
	KeepAlive   net.KeepAliveConfig
}
