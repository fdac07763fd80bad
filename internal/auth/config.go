package auth

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/die-net/sockd/internal/config"
)

// Configuration key segments, below KeyPrefix.
const (
	KeyPrefix           = "proxy_server.socks.5.auth.method"
	KeyNoAuth           = "no_auth"
	KeyGSSAPI           = "gssapi"
	KeyUsernamePassword = "usr_pwd"

	keyEnable          = "enable"
	keyDefaultUsername = "default_username"
	keyDefaultPassword = "default_password"
)

// ConfigKeys lists every key read by FromConfig.
func ConfigKeys() []string {
	return []string{
		config.Key(KeyPrefix, KeyNoAuth, keyEnable),
		config.Key(KeyPrefix, KeyGSSAPI, keyEnable),
		config.Key(KeyPrefix, KeyUsernamePassword, keyEnable),
		config.Key(KeyPrefix, KeyUsernamePassword, keyDefaultUsername),
		config.Key(KeyPrefix, KeyUsernamePassword, keyDefaultPassword),
	}
}

// Options supplies what configuration alone cannot.
type Options struct {
	// Credentials seeds the username/password store; the configured default
	// user is added on top. May be nil.
	Credentials *Credentials
	// Mechanism backs the GSS-API method. Without one, GSS-API stays
	// disabled even when configured.
	Mechanism Mechanism
	Logger    zerolog.Logger
}

// FromConfig builds the registry in priority order no-auth, GSS-API,
// username/password. Every method is disabled unless its "enable" key is
// true.
func FromConfig(cfg config.Lookup, opts Options) (*Registry, error) {
	noAuth := cfg.GetBool(false, KeyPrefix, KeyNoAuth, keyEnable)

	gss := cfg.GetBool(false, KeyPrefix, KeyGSSAPI, keyEnable)
	if gss && opts.Mechanism == nil {
		opts.Logger.Warn().Msg("gssapi enabled but no mechanism is available; disabling it")
		gss = false
	}

	userPass := cfg.GetBool(false, KeyPrefix, KeyUsernamePassword, keyEnable)
	creds := opts.Credentials
	if creds == nil {
		creds = NewCredentials()
	}
	if userPass {
		user := cfg.GetString("", KeyPrefix, KeyUsernamePassword, keyDefaultUsername)
		pass := cfg.GetString("", KeyPrefix, KeyUsernamePassword, keyDefaultPassword)
		if user != "" {
			if err := creds.Add(user, pass); err != nil {
				return nil, fmt.Errorf("default credentials: %w", err)
			}
		}
		if creds.Len() == 0 {
			return nil, errors.New("username/password enabled but no credentials configured")
		}
	}

	r := NewRegistry(
		NoAuthMethod(noAuth),
		GSSAPIMethod(gss, opts.Mechanism),
		UsernamePasswordMethod(userPass, creds),
	)
	for _, m := range r.Methods() {
		opts.Logger.Info().Str("method", m.Name).Bool("enabled", m.Enabled).Msg("auth method")
	}
	return r, nil
}
