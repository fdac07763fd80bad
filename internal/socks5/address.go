package socks5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
)

// ErrUnsupportedAddress is returned for address families sockd cannot encode.
var ErrUnsupportedAddress = errors.New("socks5: unsupported address family")

// addressReader reads the DST.ADDR octets that follow an ATYP byte.
type addressReader func(r io.Reader) ([]byte, error)

// addressTypes maps ATYP codes to their readers. Domain names and IPv6 are
// not served.
var addressTypes = map[byte]addressReader{
	ATYPIPv4: readOctets(net.IPv4len),
}

func readOctets(n int) addressReader {
	return func(r io.Reader) ([]byte, error) {
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		return b, nil
	}
}

// SupportedAddressType reports whether atyp can be parsed.
func SupportedAddressType(atyp byte) bool {
	_, ok := addressTypes[atyp]
	return ok
}

// DecodeIPv4 turns 4 address octets and 2 big-endian port octets into a
// dialable "ip:port" string.
func DecodeIPv4(addr, port []byte) (string, error) {
	if len(addr) != net.IPv4len {
		return "", fmt.Errorf("socks5: ipv4 address needs %d octets, got %d", net.IPv4len, len(addr))
	}
	if len(port) != 2 {
		return "", fmt.Errorf("socks5: port needs 2 octets, got %d", len(port))
	}
	ip := netip.AddrFrom4([4]byte(addr))
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(binary.BigEndian.Uint16(port)))), nil
}

// Endpoint is the listener's own address as echoed in every request reply.
type Endpoint struct {
	atyp byte
	addr []byte
	port []byte
}

// NewEndpoint builds an Endpoint from a listener address. Only IPv4
// addresses are accepted.
func NewEndpoint(a net.Addr) (Endpoint, error) {
	ap, err := netip.ParseAddrPort(a.String())
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse endpoint %q: %w", a.String(), err)
	}
	ip := ap.Addr().Unmap()
	if !ip.Is4() {
		return Endpoint{}, fmt.Errorf("endpoint %s: %w", a.String(), ErrUnsupportedAddress)
	}
	port := make([]byte, 2)
	binary.BigEndian.PutUint16(port, ap.Port())
	return Endpoint{atyp: ATYPIPv4, addr: ip.AsSlice(), port: port}, nil
}

// AddrType returns the ATYP code of the endpoint.
func (e Endpoint) AddrType() byte { return e.atyp }

// Addr returns a copy of the address octets.
func (e Endpoint) Addr() []byte { return append([]byte(nil), e.addr...) }

// Port returns a copy of the big-endian port octets.
func (e Endpoint) Port() []byte { return append([]byte(nil), e.port...) }

func (e Endpoint) String() string {
	if len(e.addr) != net.IPv4len || len(e.port) != 2 {
		return "<invalid>"
	}
	s, _ := DecodeIPv4(e.addr, e.port)
	return s
}
