// Package hostauth implements the host's "require_auth" capability (spec
// §6): verifying that a named principal authorized the current call before
// dispatch ever invokes a native engine. Adapted from the teacher's
// services/otc-gateway/auth bearer-JWT middleware, simplified to a single
// HMAC-signed subject claim carrying the caller's bech32 principal.
package hostauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"guildcore/internal/principal"
)

var (
	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("hostauth: missing bearer token")
	// ErrInvalidToken is returned when the token fails signature or claim
	// validation.
	ErrInvalidToken = errors.New("hostauth: invalid token")
)

// Authenticator verifies that the caller of an HTTP request is who they
// claim to be, returning the authenticated Principal.
type Authenticator interface {
	Authenticate(r *http.Request) (principal.Principal, error)
}

// JWTAuthenticator verifies HS256 bearer tokens whose "sub" claim is a
// bech32-encoded Principal.
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator constructs an Authenticator backed by a shared HMAC
// secret.
func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret)}
}

// Authenticate extracts and verifies the bearer token from r's Authorization
// header.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (principal.Principal, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return principal.Principal{}, ErrMissingToken
	}
	raw := strings.TrimPrefix(header, prefix)

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return principal.Principal{}, ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return principal.Principal{}, ErrInvalidToken
	}
	p, err := principal.Parse(sub)
	if err != nil {
		return principal.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return p, nil
}

// IssueToken mints a bearer token for p, signed with secret, expiring after
// ttl. Used by tests and the CLI's local-demo login flow.
func IssueToken(secret string, p principal.Principal, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": p.String(),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
