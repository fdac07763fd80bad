package dialer

import (
	"errors"
	"syscall"

	"github.com/die-net/sockd/internal/socks5"
)

// Classify maps an error from DialContext to the reply code sent to the
// client. Refused and unreachable destinations report NetworkUnreachable,
// tuning failures GeneralFailure, and everything else HostUnreachable.
func Classify(err error) socks5.ReplyCode {
	switch {
	case err == nil:
		return socks5.Success
	case errors.Is(err, ErrTune):
		return socks5.GeneralFailure
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EHOSTUNREACH):
		return socks5.NetworkUnreachable
	default:
		return socks5.HostUnreachable
	}
}
