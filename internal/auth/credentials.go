package auth

import (
	"bufio"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Credentials maps usernames to passwords. Stored passwords starting with
// "$2" are bcrypt hashes; anything else is compared verbatim. It is filled
// during startup and only read afterwards.
type Credentials struct {
	users map[string]string
}

// NewCredentials returns an empty store.
func NewCredentials() *Credentials {
	return &Credentials{users: make(map[string]string)}
}

// Add stores a password (or bcrypt hash) for username, replacing any
// previous entry.
func (c *Credentials) Add(username, password string) error {
	if username == "" {
		return errors.New("credentials: empty username")
	}
	if len(username) > 255 || (!isBcrypt(password) && len(password) > 255) {
		return fmt.Errorf("credentials: %q: username and password are limited to 255 bytes", username)
	}
	c.users[username] = password
	return nil
}

// Len returns the number of users.
func (c *Credentials) Len() int {
	return len(c.users)
}

// Verify reports whether password matches the entry for username. Matching
// is exact and case-sensitive.
func (c *Credentials) Verify(username, password string) bool {
	stored, ok := c.users[username]
	if !ok {
		return false
	}
	if isBcrypt(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// Load reads "username:password" lines from r. Blank lines and lines
// starting with '#' are skipped.
func (c *Credentials) Load(r io.Reader) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		user, pass, ok := strings.Cut(text, ":")
		if !ok {
			return fmt.Errorf("credentials line %d: expected username:password", line)
		}
		if err := c.Add(user, pass); err != nil {
			return fmt.Errorf("credentials line %d: %w", line, err)
		}
	}
	return sc.Err()
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2")
}
