// Package credential hashes account passwords and issues the opaque
// activation and password reset tokens.
package credential

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-account/pkg/utilities"
)

var ErrEmptyPassword = errors.New("password is empty")

// PasswordHasher is the minimal hashing interface used by account registration.
type PasswordHasher interface {
	Hash(password, salt string) (string, error)
	Verify(hash, password, salt string) bool
}

// BcryptHasher implementation. The salted password is digested first so the
// bcrypt input stays below its 72 byte limit.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(password, salt string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword(saltedDigest(password, salt), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, password, salt string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), saltedDigest(password, salt)) == nil
}

func saltedDigest(password, salt string) []byte {
	sum := sha256.Sum256([]byte(salt + password))
	return []byte(hex.EncodeToString(sum[:]))
}

// NewSalt returns a fresh per-account salt.
func NewSalt() string { return utilities.NewKSUID() }

const (
	ActivationTokenTTL    = 24 * time.Hour
	ResetPasswordTokenTTL = time.Hour
)

// Token is an opaque single-use token with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// NewToken issues a token valid for ttl from now.
func NewToken(now time.Time, ttl time.Duration) Token {
	return Token{Value: utilities.NewKSUID(), ExpiresAt: now.Add(ttl)}
}

// Valid reports whether a stored token is present and not expired.
func Valid(token *string, expiresAt *time.Time, now time.Time) bool {
	if token == nil || *token == "" {
		return false
	}
	return expiresAt == nil || now.Before(*expiresAt)
}
