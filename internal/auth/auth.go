// Package auth resolves caller credentials into the authorization flag that
// handlers consult before doing any work.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

// Config controls which credentials are accepted.
type Config struct {
	// Enabled false authorizes every request
	Enabled     bool
	APIKeys     []string
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

// Authenticator checks static API keys and HS256 bearer tokens.
type Authenticator struct {
	enabled bool
	apiKeys [][]byte
	secret  []byte
	parser  *jwt.Parser
}

// NewAuthenticator builds an Authenticator from config.
func NewAuthenticator(cfg Config) *Authenticator {
	a := &Authenticator{enabled: cfg.Enabled}

	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			a.apiKeys = append(a.apiKeys, []byte(k))
		}
	}

	if cfg.JWTSecret != "" {
		a.secret = []byte(cfg.JWTSecret)
		opts := []jwt.ParserOption{
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		}
		if cfg.JWTIssuer != "" {
			opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
		}
		if cfg.JWTAudience != "" {
			opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
		}
		a.parser = jwt.NewParser(opts...)
	}

	return a
}

// Enabled reports whether credentials are checked at all.
func (a *Authenticator) Enabled() bool {
	return a != nil && a.enabled
}

// Verify checks a raw credential. It accepts a configured API key or a
// signed token; anything else is ErrInvalidCredential.
func (a *Authenticator) Verify(credential string) error {
	if !a.Enabled() {
		return nil
	}
	if credential == "" {
		return ErrMissingCredential
	}

	if a.matchAPIKey(credential) {
		return nil
	}

	if a.parser != nil && strings.Count(credential, ".") == 2 {
		_, err := a.parser.Parse(credential, func(*jwt.Token) (any, error) {
			return a.secret, nil
		})
		if err == nil {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	return ErrInvalidCredential
}

func (a *Authenticator) matchAPIKey(credential string) bool {
	given := []byte(credential)
	matched := 0
	for _, k := range a.apiKeys {
		matched |= subtle.ConstantTimeCompare(given, k)
	}
	return matched == 1
}
