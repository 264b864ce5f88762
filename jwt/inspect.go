package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned when a bearer token is opaque (not a compact JWT).
var ErrNotJWT = errors.New("token is not a JWT")

// Claims is the subset of registered and common claims surfaced to callers.
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	SessionID string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Expired reports whether the token expiry is before now. Tokens without an
// exp claim never expire from the client's point of view.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Inspect decodes the claims of token without verifying its signature.
func Inspect(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return Claims{}, ErrNotJWT
	}

	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mapClaims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}

	var out Claims
	out.Subject, _ = mapClaims.GetSubject()
	out.Issuer, _ = mapClaims.GetIssuer()
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if iat, err := mapClaims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	out.Email = stringClaim(mapClaims, "email")
	out.SessionID = stringClaim(mapClaims, "sid")
	return out, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	v, ok := claims[name].(string)
	if !ok {
		return ""
	}
	return v
}
