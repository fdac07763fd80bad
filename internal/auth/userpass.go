package auth

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/sockd/internal/socks5"
)

// UsernamePassword implements RFC 1929:
//
//	+----+------+----------+------+----------+
//	|VER | ULEN |  UNAME   | PLEN |  PASSWD  |
//	+----+------+----------+------+----------+
//	| 1  |  1   | 1 to 255 |  1   | 1 to 255 |
//	+----+------+----------+------+----------+
//
// answered by [VER, STATUS].
type UsernamePassword struct {
	Credentials *Credentials
}

// UsernamePasswordMethod returns the username/password method descriptor.
func UsernamePasswordMethod(enabled bool, creds *Credentials) Method {
	return Method{
		Code:          socks5.MethodUsernamePassword,
		Name:          KeyUsernamePassword,
		Enabled:       enabled,
		Authenticator: &UsernamePassword{Credentials: creds},
	}
}

func (a *UsernamePassword) Authenticate(ctx context.Context, rw io.ReadWriter) error {
	log := zerolog.Ctx(ctx)

	username, password, err := readUserPass(rw)
	if err != nil {
		_ = a.reply(rw, txsocks5.UserPassStatusFailure)
		return fmt.Errorf("username/password: %w: %w", ErrAuthFailed, err)
	}

	if a.Credentials == nil || !a.Credentials.Verify(username, password) {
		log.Debug().Str("username", username).Msg("username/password rejected")
		_ = a.reply(rw, txsocks5.UserPassStatusFailure)
		return fmt.Errorf("username/password: %w: user %q", ErrAuthFailed, username)
	}

	if err := a.reply(rw, txsocks5.UserPassStatusSuccess); err != nil {
		return fmt.Errorf("username/password: %w", err)
	}
	log.Info().Str("username", username).Msg("username/password accepted")
	return nil
}

func (a *UsernamePassword) reply(w io.Writer, status byte) error {
	_, err := txsocks5.NewUserPassNegotiationReply(status).WriteTo(w)
	return err
}

func readUserPass(r io.Reader) (string, string, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", "", fmt.Errorf("read version: %w", err)
	}
	if b[0] != txsocks5.UserPassVer {
		return "", "", fmt.Errorf("unsupported version %#02x", b[0])
	}
	username, err := readField(r)
	if err != nil {
		return "", "", fmt.Errorf("read username: %w", err)
	}
	password, err := readField(r)
	if err != nil {
		return "", "", fmt.Errorf("read password: %w", err)
	}
	return username, password, nil
}

// readField reads a length-prefixed field.
func readField(r io.Reader) (string, error) {
	var n [1]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", err
	}
	b := make([]byte, n[0])
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
