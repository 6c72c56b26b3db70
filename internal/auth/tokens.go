package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/fitsync/internal/model"
)

// fallbackTTL is assumed when neither the response nor the JWT carries an expiry.
const fallbackTTL = 15 * time.Minute

// withExpiry fills ExpiresAt from the access token's exp claim when the server omitted it.
// The signature is not verified: the device has no key and only needs the timestamp.
func withExpiry(t model.AuthTokens, now time.Time) model.AuthTokens {
	if t.ExpiresAt > 0 {
		return t
	}
	var claims jwt.RegisteredClaims
	_, _, err := jwt.NewParser().ParseUnverified(t.Token, &claims)
	if err == nil && claims.ExpiresAt != nil {
		t.ExpiresAt = claims.ExpiresAt.Time.UnixMilli()
		return t
	}
	t.ExpiresAt = now.Add(fallbackTTL).UnixMilli()
	return t
}
