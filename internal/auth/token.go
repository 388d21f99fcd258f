package auth

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shourk/messaging/backend/internal/model/chat"
)

var (
	ErrMissingToken   = errors.New("access token is required")
	ErrMalformedToken = errors.New("invalid token format")
	ErrExpiredToken   = errors.New("token has expired")
	ErrInvalidToken   = errors.New("invalid token")
)

// tokenShape is three base64url segments separated by dots.
var tokenShape = regexp.MustCompile(`^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*$`)

// Claims is what the identity provider signs into an access token.
type Claims struct {
	ID   string    `json:"_id"`
	Role chat.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for id acting as role.
func (i *Issuer) Issue(id string, role chat.Role) (string, error) {
	if id == "" || !role.Valid() {
		return "", fmt.Errorf("issue token: %w", ErrInvalidToken)
	}
	now := i.now()
	claims := &Claims{
		ID:   id,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   id,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify resolves a raw token into the caller it identifies.
func (i *Issuer) Verify(raw string) (chat.Caller, error) {
	if raw == "" {
		return chat.Caller{}, ErrMissingToken
	}
	if !tokenShape.MatchString(raw) {
		return chat.Caller{}, ErrMalformedToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return chat.Caller{}, ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenMalformed):
		return chat.Caller{}, ErrMalformedToken
	case err != nil:
		return chat.Caller{}, ErrInvalidToken
	}

	caller := chat.Caller{ID: claims.ID, Role: claims.Role}
	if !caller.Valid() {
		return chat.Caller{}, ErrInvalidToken
	}
	return caller, nil
}
