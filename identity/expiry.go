package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExpiryHint extracts the exp claim from a JWT-shaped token without verifying
// it. Tokens are opaque to the session layer and nothing gates on this value;
// it exists purely for diagnostics (logging how stale a stored credential is).
// Returns false for non-JWT tokens or tokens without an exp claim.
func ExpiryHint(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
