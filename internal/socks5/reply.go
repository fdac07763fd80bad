package socks5

import (
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

// WriteMethodSelection writes the server's choice of authentication method,
// [VER, METHOD]. MethodNoAcceptable tells the client no offered method is
// acceptable.
func WriteMethodSelection(w io.Writer, method byte) error {
	if _, err := txsocks5.NewNegotiationReply(method).WriteTo(w); err != nil {
		return fmt.Errorf("method selection: %w", err)
	}
	return nil
}

// WriteReply writes a request reply carrying code and the server endpoint
// as BND.ADDR/BND.PORT.
func WriteReply(w io.Writer, code ReplyCode, ep Endpoint) error {
	if _, err := txsocks5.NewReply(byte(code), ep.atyp, ep.Addr(), ep.Port()).WriteTo(w); err != nil {
		return fmt.Errorf("reply %s: %w", code, err)
	}
	return nil
}
