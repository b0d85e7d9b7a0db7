// Package auth verifies the bearer tokens that guard administrative endpoints.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrNotAdmin     = errors.New("token does not grant admin")
)

// AdminClaims is carried by tokens issued to administrators.
type AdminClaims struct {
	Admin bool `json:"admin"`
	jwt.RegisteredClaims
}

// AdminVerifier checks HS256 tokens signed with a shared secret.
type AdminVerifier struct {
	secret []byte
}

func NewAdminVerifier(secret string) *AdminVerifier {
	return &AdminVerifier{secret: []byte(secret)}
}

// Issue signs an admin token for subject; used by operators and tests.
func (v *AdminVerifier) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Admin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify parses the token and requires the admin claim.
func (v *AdminVerifier) Verify(token string) (*AdminClaims, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("admin secret not configured")
	}
	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !claims.Admin {
		return nil, ErrNotAdmin
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return "", ErrMissingToken
	}
	tok := strings.TrimSpace(h[len("bearer "):])
	if tok == "" {
		return "", ErrMissingToken
	}
	return tok, nil
}
