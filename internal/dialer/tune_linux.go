//go:build linux

package dialer

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// tunePlatform disables delayed ACKs. Linux clears TCP_QUICKACK again on
// its own, so this only affects the start of the connection.
func tunePlatform(tc *net.TCPConn) error {
	rc, err := tc.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
	}); err != nil {
		return err
	}
	if serr != nil {
		return fmt.Errorf("quickack: %w", serr)
	}
	return nil
}
