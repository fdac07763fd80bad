//go:build !linux

package dialer

import "net"

func tunePlatform(*net.TCPConn) error { return nil }
