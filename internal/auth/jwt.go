// Package auth handles federated sign-in and the session token.
//
// The session token is an HS256 JWT mirrored into the __session cookie. It
// carries only identity claims; the role is always looked up and reconciled
// against the profile store when the session is rehydrated, so a token never
// grants a role on its own.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/contribhub/internal/model"
)

const issuer = "contribhub"

// DefaultSessionTTL matches the lifetime of the provider's own id token.
const DefaultSessionTTL = time.Hour

// ErrTokenExpired is returned by Validate for a well-formed but expired token.
var ErrTokenExpired = errors.New("auth: token expired")

// TokenService issues and validates session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// bytes; a non-positive ttl falls back to DefaultSessionTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is how long issued tokens stay valid.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// SessionClaims is the identity carried by a session token.
type SessionClaims struct {
	Email    string         `json:"email,omitempty"`
	PhotoURL string         `json:"picture,omitempty"`
	Provider model.Provider `json:"provider"`
	jwt.RegisteredClaims
}

// UID is the stable user id, stored as the token subject.
func (c *SessionClaims) UID() string {
	return c.Subject
}

// Identity holds the fields needed to issue a session token.
type Identity struct {
	UID      string
	Email    string
	PhotoURL string
	Provider model.Provider
}

// Issue signs a token for id that expires after the service TTL.
func (s *TokenService) Issue(id Identity) (string, error) {
	return s.issueFor(id, s.ttl)
}

// issueFor signs a token that expires after d.
func (s *TokenService) issueFor(id Identity, d time.Duration) (string, error) {
	if id.UID == "" {
		return "", errors.New("auth: identity has no uid")
	}

	now := time.Now()
	c := SessionClaims{
		Email:    id.Email,
		PhotoURL: id.PhotoURL,
		Provider: id.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses tokenStr and returns its claims.
//
// Only HS256 is accepted; the issuer and an expiry are required.
func (s *TokenService) Validate(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&SessionClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}

	return c, nil
}
