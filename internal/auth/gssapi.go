package auth

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/die-net/sockd/internal/socks5"
)

// SecurityContext is the per-connection state of a GSS-API mechanism.
// sockd only drives the token exchange; the mechanism itself lives outside.
type SecurityContext interface {
	// AcceptToken feeds a client token to the context. It returns the token
	// to send back (possibly empty) and whether the context is established.
	AcceptToken(token []byte) (resp []byte, established bool, err error)
	// Wrap protects msg for the client.
	Wrap(msg []byte) ([]byte, error)
	// Unwrap removes protection from a client token.
	Unwrap(token []byte) ([]byte, error)
}

// Mechanism creates a fresh SecurityContext for each connection.
type Mechanism interface {
	NewContext() (SecurityContext, error)
}

// MechanismFunc adapts a function to Mechanism.
type MechanismFunc func() (SecurityContext, error)

func (f MechanismFunc) NewContext() (SecurityContext, error) { return f() }

// RFC 1961 framing.
const (
	gssVersion byte = 0x01

	gssAuthentication byte = 0x01
	gssNegotiation    byte = 0x02
	gssAbort          byte = 0xff

	gssMaxToken = 1<<16 - 1
)

// Protection levels a client may ask for during subnegotiation.
const (
	ProtectionNone            byte = 0x00
	ProtectionIntegrity       byte = 0x01
	ProtectionConfidentiality byte = 0x02
)

var errGSSFraming = errors.New("gssapi: bad frame")

// GSSAPI runs the RFC 1961 context establishment and protection level
// subnegotiation. Per-message protection of the relayed stream is not
// applied.
type GSSAPI struct {
	Mechanism Mechanism
}

// GSSAPIMethod returns the GSS-API method descriptor.
func GSSAPIMethod(enabled bool, mech Mechanism) Method {
	m := Method{Code: socks5.MethodGSSAPI, Name: KeyGSSAPI, Enabled: enabled}
	if mech != nil {
		m.Authenticator = &GSSAPI{Mechanism: mech}
	}
	return m
}

func (g *GSSAPI) Authenticate(ctx context.Context, rw io.ReadWriter) error {
	if err := g.authenticate(ctx, rw); err != nil {
		if _, werr := rw.Write([]byte{gssVersion, gssAbort}); werr != nil {
			zerolog.Ctx(ctx).Debug().Err(werr).Msg("gssapi: write failure reply")
		}
		return fmt.Errorf("gssapi: %w: %w", ErrAuthFailed, err)
	}
	return nil
}

func (g *GSSAPI) authenticate(ctx context.Context, rw io.ReadWriter) error {
	log := zerolog.Ctx(ctx)

	sc, err := g.Mechanism.NewContext()
	if err != nil {
		return fmt.Errorf("new security context: %w", err)
	}

	for {
		token, err := readGSSMessage(rw, gssAuthentication)
		if err != nil {
			return err
		}
		resp, established, err := sc.AcceptToken(token)
		if err != nil {
			return fmt.Errorf("accept token: %w", err)
		}
		if len(resp) > 0 {
			if err := writeGSSMessage(rw, gssAuthentication, resp); err != nil {
				return err
			}
			log.Trace().Str("token", hex.EncodeToString(resp)).Msg("gssapi: sent context token")
		}
		if established {
			break
		}
	}
	log.Debug().Msg("gssapi: security context established")

	token, err := readGSSMessage(rw, gssNegotiation)
	if err != nil {
		return err
	}
	level, err := sc.Unwrap(token)
	if err != nil {
		return fmt.Errorf("unwrap protection level: %w", err)
	}
	if len(level) != 1 {
		return fmt.Errorf("protection level is %d octets, want 1", len(level))
	}
	switch level[0] {
	case ProtectionNone, ProtectionIntegrity, ProtectionConfidentiality:
	default:
		return fmt.Errorf("unsupported protection level %#02x", level[0])
	}

	// The server agrees to whatever level the client asked for.
	wrapped, err := sc.Wrap([]byte{level[0]})
	if err != nil {
		return fmt.Errorf("wrap protection level: %w", err)
	}
	if err := writeGSSMessage(rw, gssNegotiation, wrapped); err != nil {
		return err
	}
	log.Info().Uint8("protection_level", level[0]).Msg("gssapi: authenticated")
	return nil
}

// readGSSMessage reads [VER][MTYP][LEN:2][TOKEN] and checks VER and MTYP.
func readGSSMessage(r io.Reader, mtyp byte) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if hdr[0] != gssVersion {
		return nil, fmt.Errorf("%w: version %#02x", errGSSFraming, hdr[0])
	}
	if hdr[1] != mtyp {
		return nil, fmt.Errorf("%w: message type %#02x, want %#02x", errGSSFraming, hdr[1], mtyp)
	}
	token := make([]byte, binary.BigEndian.Uint16(hdr[2:]))
	if _, err := io.ReadFull(r, token); err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	return token, nil
}

func writeGSSMessage(w io.Writer, mtyp byte, token []byte) error {
	if len(token) > gssMaxToken {
		return fmt.Errorf("%w: token of %d octets", errGSSFraming, len(token))
	}
	msg := make([]byte, 4, 4+len(token))
	msg[0] = gssVersion
	msg[1] = mtyp
	binary.BigEndian.PutUint16(msg[2:], uint16(len(token)))
	msg = append(msg, token...)
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}
