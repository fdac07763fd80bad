package socks5

import (
	"fmt"

	txsocks5 "github.com/txthinking/socks5"
)

// Version is the only protocol version served.
const Version = txsocks5.Ver

// Reserved is the value of every RSV field.
const Reserved byte = 0x00

// Authentication methods as defined in RFC 1928.
const (
	MethodNoAuth           = txsocks5.MethodNone
	MethodGSSAPI           = txsocks5.MethodGSSAPI
	MethodUsernamePassword = txsocks5.MethodUsernamePassword
	MethodNoAcceptable     = txsocks5.MethodUnsupportAll
)

// Commands. Only CONNECT is executed; the others are recognised so they
// can be answered with UnsupportedCommand.
const (
	CmdConnect = txsocks5.CmdConnect
	CmdBind    = txsocks5.CmdBind
	CmdUDP     = txsocks5.CmdUDP
)

// Address types.
const (
	ATYPIPv4   = txsocks5.ATYPIPv4
	ATYPDomain = txsocks5.ATYPDomain
	ATYPIPv6   = txsocks5.ATYPIPv6
)

// ReplyCode is the REP field of a request reply.
type ReplyCode byte

const (
	Success                ReplyCode = ReplyCode(txsocks5.RepSuccess)
	GeneralFailure         ReplyCode = ReplyCode(txsocks5.RepServerFailure)
	ConnectionDisallowed   ReplyCode = ReplyCode(txsocks5.RepNotAllowed)
	NetworkUnreachable     ReplyCode = ReplyCode(txsocks5.RepNetworkUnreachable)
	HostUnreachable        ReplyCode = ReplyCode(txsocks5.RepHostUnreachable)
	ConnectionRefused      ReplyCode = ReplyCode(txsocks5.RepConnectionRefused)
	TTLExpired             ReplyCode = ReplyCode(txsocks5.RepTTLExpired)
	UnsupportedCommand     ReplyCode = ReplyCode(txsocks5.RepCommandNotSupported)
	UnsupportedAddressType ReplyCode = ReplyCode(txsocks5.RepAddressNotSupported)
)

var replyCodeNames = map[ReplyCode]string{
	Success:                "succeeded",
	GeneralFailure:         "general SOCKS server failure",
	ConnectionDisallowed:   "connection not allowed by ruleset",
	NetworkUnreachable:     "network unreachable",
	HostUnreachable:        "host unreachable",
	ConnectionRefused:      "connection refused",
	TTLExpired:             "TTL expired",
	UnsupportedCommand:     "command not supported",
	UnsupportedAddressType: "address type not supported",
}

func (c ReplyCode) String() string {
	if s, ok := replyCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("reply code %#02x", byte(c))
}

// MethodName returns a printable name for an authentication method code.
func MethodName(m byte) string {
	switch m {
	case MethodNoAuth:
		return "no-auth"
	case MethodGSSAPI:
		return "gssapi"
	case MethodUsernamePassword:
		return "username/password"
	case MethodNoAcceptable:
		return "no-acceptable"
	default:
		return fmt.Sprintf("method %#02x", m)
	}
}

// CommandName returns a printable name for a command code.
func CommandName(cmd byte) string {
	switch cmd {
	case CmdConnect:
		return "CONNECT"
	case CmdBind:
		return "BIND"
	case CmdUDP:
		return "UDP_ASSOCIATE"
	default:
		return fmt.Sprintf("command %#02x", cmd)
	}
}

// Auth configures optional username/password authentication for the client
// side of a negotiation.
type Auth struct {
	Username string
	Password string
}
