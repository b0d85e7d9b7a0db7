package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminVerifier_RoundTrip(t *testing.T) {
	v := NewAdminVerifier("s3cret")
	tok, err := v.Issue("root", time.Minute)
	require.NoError(t, err)

	claims, err := v.Verify(tok)
	require.NoError(t, err)
	assert.True(t, claims.Admin)
	assert.Equal(t, "root", claims.Subject)
}

func TestAdminVerifier_Rejects(t *testing.T) {
	v := NewAdminVerifier("s3cret")

	other, err := NewAdminVerifier("other").Issue("root", time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(other)
	assert.Error(t, err)

	expired, err := v.Issue("root", -time.Minute)
	require.NoError(t, err)
	_, err = v.Verify(expired)
	assert.Error(t, err)

	plain, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	_, err = v.Verify(plain)
	assert.ErrorIs(t, err, ErrNotAdmin)

	_, err = NewAdminVerifier("").Verify(plain)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	_, err := BearerToken(r)
	assert.ErrorIs(t, err, ErrMissingToken)

	r.Header.Set("Authorization", "Basic abc")
	_, err = BearerToken(r)
	assert.ErrorIs(t, err, ErrMissingToken)

	r.Header.Set("Authorization", "Bearer abc.def")
	tok, err := BearerToken(r)
	require.NoError(t, err)
	assert.Equal(t, "abc.def", tok)
}
