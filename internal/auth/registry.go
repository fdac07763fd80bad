// Package auth implements the SOCKS5 authentication methods served by sockd
// and the registry that picks one per connection.
//
// The registry keeps methods in a fixed priority order decided at
// construction time. Whether a method is enabled does not change its
// position; selection walks the registry and takes the first method that is
// enabled and offered by the client.
package auth

import (
	"context"
	"errors"
	"io"
	"slices"

	"github.com/die-net/sockd/internal/socks5"
)

// ErrAuthFailed is wrapped by every authentication failure.
var ErrAuthFailed = errors.New("authentication failed")

// Authenticator runs one method's sub-negotiation on an established client
// connection. It returns nil when the client is authenticated.
type Authenticator interface {
	Authenticate(ctx context.Context, rw io.ReadWriter) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, rw io.ReadWriter) error

func (f AuthenticatorFunc) Authenticate(ctx context.Context, rw io.ReadWriter) error {
	return f(ctx, rw)
}

// Method describes one authentication method.
type Method struct {
	// Code is the METHOD value on the wire.
	Code byte
	// Name is the method's configuration key segment.
	Name    string
	Enabled bool
	Authenticator
}

// Registry is an ordered, immutable set of methods.
type Registry struct {
	methods []Method
}

// NewRegistry returns a registry with methods in the given priority order.
func NewRegistry(methods ...Method) *Registry {
	return &Registry{methods: slices.Clone(methods)}
}

// Select returns the highest priority method that is enabled and present in
// offered.
func (r *Registry) Select(offered []byte) (Method, bool) {
	for _, m := range r.methods {
		if m.Enabled && m.Authenticator != nil && slices.Contains(offered, m.Code) {
			return m, true
		}
	}
	return Method{}, false
}

// Methods returns the registered methods in priority order.
func (r *Registry) Methods() []Method {
	return slices.Clone(r.methods)
}

// Enabled returns the codes of enabled methods in priority order.
func (r *Registry) Enabled() []byte {
	var codes []byte
	for _, m := range r.methods {
		if m.Enabled && m.Authenticator != nil {
			codes = append(codes, m.Code)
		}
	}
	return codes
}

// NoAuth accepts every client without a sub-negotiation.
var NoAuth = AuthenticatorFunc(func(context.Context, io.ReadWriter) error {
	return nil
})

// NoAuthMethod returns the no-authentication method descriptor.
func NoAuthMethod(enabled bool) Method {
	return Method{Code: socks5.MethodNoAuth, Name: KeyNoAuth, Enabled: enabled, Authenticator: NoAuth}
}
