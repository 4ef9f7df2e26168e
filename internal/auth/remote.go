package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RemoteExpiry returns the exp claim of a server-issued token without
// verifying its signature. ok is false when the token is opaque or carries
// no expiry.
func RemoteExpiry(token string) (exp time.Time, ok bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	claims, isMap := parsed.Claims.(jwt.MapClaims)
	if !isMap {
		return time.Time{}, false
	}
	date, err := claims.GetExpirationTime()
	if err != nil || date == nil {
		return time.Time{}, false
	}
	return date.Time, true
}

// RemoteExpired reports whether a server-issued token expires within skew of
// now. Tokens without a readable expiry never count as expired.
func RemoteExpired(token string, now time.Time, skew time.Duration) bool {
	exp, ok := RemoteExpiry(token)
	if !ok {
		return false
	}
	return !now.Add(skew).Before(exp)
}
