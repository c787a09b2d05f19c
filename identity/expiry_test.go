package identity_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/omnibrand/go-session-kit/identity"
)

func TestExpiryHintFromJWT(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	hint, ok := identity.ExpiryHint(signed)
	require.True(t, ok)
	require.True(t, hint.Equal(exp))
}

func TestExpiryHintOpaqueToken(t *testing.T) {
	_, ok := identity.ExpiryHint("opaque-bearer-token")
	require.False(t, ok)
}

func TestExpiryHintJWTWithoutExp(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, ok := identity.ExpiryHint(signed)
	require.False(t, ok)
}
