package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AudioPress/audiopress/config"
)

// Authenticator validates incoming requests. Return a non-nil error to reject.
type Authenticator interface {
	Authenticate(r *http.Request) error
}

// Auth mode names accepted in config.
const (
	AuthModeNone   = "none"
	AuthModeAPIKey = "api_key"
	AuthModeJWT    = "jwt"
)

const bearerPrefix = "Bearer "

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return ""
	}
	return header[len(bearerPrefix):]
}

// APIKeyAuthenticator accepts requests carrying a pre-shared key in the
// X-API-Key header or as a bearer token. Keys are compared as SHA-256
// digests in constant time.
type APIKeyAuthenticator struct {
	digest [sha256.Size]byte
}

// NewAPIKeyAuthenticator creates an authenticator for the given key.
func NewAPIKeyAuthenticator(key string) (*APIKeyAuthenticator, error) {
	if key == "" {
		return nil, errors.New("API key must not be empty")
	}
	return &APIKeyAuthenticator{digest: sha256.Sum256([]byte(key))}, nil
}

// Authenticate implements Authenticator.
func (a *APIKeyAuthenticator) Authenticate(r *http.Request) error {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = bearerToken(r)
	}
	if key == "" {
		return errors.New("missing API key")
	}

	digest := sha256.Sum256([]byte(key))
	if subtle.ConstantTimeCompare(digest[:], a.digest[:]) != 1 {
		return errors.New("invalid API key")
	}
	return nil
}

// JWTAuthenticator accepts requests carrying an HMAC-signed bearer
// token (HS256). Expiry and not-before claims are enforced by the
// parser.
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator creates an authenticator verifying tokens signed
// with the given shared secret.
func NewJWTAuthenticator(secret string) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, errors.New("JWT secret must not be empty")
	}
	return &JWTAuthenticator{secret: []byte(secret)}, nil
}

// Authenticate implements Authenticator.
func (a *JWTAuthenticator) Authenticate(r *http.Request) error {
	tokenString := bearerToken(r)
	if tokenString == "" {
		return errors.New("missing bearer token")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.secret, nil
	})
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}

// AuthenticatorFromConfig builds the authenticator selected by
// server.auth.mode. Mode "none" returns nil, leaving the API open.
func AuthenticatorFromConfig(cfg *config.Manager) (Authenticator, error) {
	mode := cfg.GetString("server.auth.mode", AuthModeNone)
	switch mode {
	case AuthModeNone, "":
		return nil, nil
	case AuthModeAPIKey:
		return NewAPIKeyAuthenticator(cfg.GetString("server.auth.api_key", ""))
	case AuthModeJWT:
		return NewJWTAuthenticator(cfg.GetString("server.auth.jwt_secret", ""))
	default:
		return nil, fmt.Errorf("unknown auth mode %q", mode)
	}
}
