package socks5

import (
	"fmt"
	"io"
)

// Request is a parsed client request:
//
//	+-----+-----+-----+------+----------+----------+
//	| VER | CMD | RSV | ATYP | DST.ADDR | DST.PORT |
//	+-----+-----+-----+------+----------+----------+
//	|  1  |  1  |  1  |  1   | Variable |    2     |
//	+-----+-----+-----+------+----------+----------+
type Request struct {
	Command  byte
	AddrType byte
	Addr     []byte
	Port     []byte
}

// RequestError reports why a request could not be parsed, together with the
// reply code the client should receive.
type RequestError struct {
	Code ReplyCode
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("socks5 request: %s: %v", e.Code, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

func requestError(code ReplyCode, format string, args ...any) *RequestError {
	return &RequestError{Code: code, Err: fmt.Errorf(format, args...)}
}

// ReadRequest reads a request frame from r. Fields are consumed in wire
// order and parsing stops at the first invalid field, so nothing past it is
// read. A failure is always a *RequestError; short reads map to
// GeneralFailure.
func ReadRequest(r io.Reader) (*Request, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:1]); err != nil {
		return nil, requestError(GeneralFailure, "read version: %w", err)
	}
	if hdr[0] != Version {
		return nil, requestError(GeneralFailure, "unsupported version %#02x", hdr[0])
	}

	if _, err := io.ReadFull(r, hdr[1:2]); err != nil {
		return nil, requestError(GeneralFailure, "read command: %w", err)
	}
	if !KnownCommand(hdr[1]) {
		return nil, requestError(UnsupportedCommand, "unsupported %s", CommandName(hdr[1]))
	}

	if _, err := io.ReadFull(r, hdr[2:3]); err != nil {
		return nil, requestError(GeneralFailure, "read reserved: %w", err)
	}
	if hdr[2] != Reserved {
		return nil, requestError(GeneralFailure, "reserved byte is %#02x", hdr[2])
	}

	if _, err := io.ReadFull(r, hdr[3:4]); err != nil {
		return nil, requestError(GeneralFailure, "read address type: %w", err)
	}
	read, ok := addressTypes[hdr[3]]
	if !ok {
		return nil, requestError(UnsupportedAddressType, "unsupported address type %#02x", hdr[3])
	}

	addr, err := read(r)
	if err != nil {
		return nil, requestError(GeneralFailure, "read address: %w", err)
	}
	port := make([]byte, 2)
	if _, err := io.ReadFull(r, port); err != nil {
		return nil, requestError(GeneralFailure, "read port: %w", err)
	}

	return &Request{Command: hdr[1], AddrType: hdr[3], Addr: addr, Port: port}, nil
}

// commands lists the command codes that have an executor. BIND and
// UDP ASSOCIATE are deliberately absent.
var commands = map[byte]bool{
	CmdConnect: true,
}

// KnownCommand reports whether cmd is executed by sockd.
func KnownCommand(cmd byte) bool {
	return commands[cmd]
}

// Destination returns DST.ADDR:DST.PORT in dialable form.
func (r *Request) Destination() string {
	s, err := DecodeIPv4(r.Addr, r.Port)
	if err != nil {
		return "<invalid>"
	}
	return s
}
