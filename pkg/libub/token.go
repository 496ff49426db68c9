package libub

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/pkg/errors"
)

// RoleAdmin is the role granting write access to every collection.
const RoleAdmin = "admin"

type (
	// Claims are the claims of the access tokens delivered by the server.
	Claims struct {
		Role string `json:"role"`
		jwt.RegisteredClaims
	}

	// A TokenAuthorizer authorizes the writes according to the role of the bearer token of a Client.
	// It does not verify the signature of the token, the server does.
	TokenAuthorizer struct {
		client interface{ BearerToken() string }
		now    func() time.Time
	}
)

// IsAdmin returns true if the claims hold the admin role.
func (c *Claims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// ParseClaims returns the claims of the given token without verifying its signature.
func ParseClaims(token string) (*Claims, error) {
	claims := new(Claims)
	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	return claims, errors.Wrap(err, "could not parse token")
}

// NewTokenAuthorizer returns a TokenAuthorizer reading the token of c.
func NewTokenAuthorizer(c interface{ BearerToken() string }) *TokenAuthorizer {
	return &TokenAuthorizer{
		client: c,
		now:    time.Now,
	}
}

// Allowed implements cms.Authorizer.
func (a *TokenAuthorizer) Allowed(_ context.Context, action cms.Action) bool {
	if action.Public {
		return true
	}

	token := a.client.BearerToken()
	if token == "" {
		return false
	}

	claims, err := ParseClaims(token)
	if err != nil {
		return false
	}
	if claims.ExpiresAt != nil && !a.now().Before(claims.ExpiresAt.Time) {
		return false
	}
	return claims.IsAdmin()
}
