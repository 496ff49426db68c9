package middlewares

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mdouchement/unionboard/internal/apierror"
	"github.com/mdouchement/unionboard/pkg/libub"
)

// CurrentClaimsContextKey is the key to retrieve the current_claims from echo.Context.
const CurrentClaimsContextKey = "current_claims"

// Auth returns a JWT auth middleware.
// Requests without token are anonymous, requests with an invalid token are rejected.
// It stores current_claims into echo.Context.
func Auth(signingKey []byte) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: signingKey,
		NewClaimsFunc: func(echo.Context) jwt.Claims {
			return new(libub.Claims)
		},
		SuccessHandler: func(c echo.Context) {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				panic("token implementation has changed")
			}
			claims, ok := token.Claims.(*libub.Claims)
			if !ok {
				panic("token implementation has wrong type of claims")
			}

			// Store current_claims for handlers.
			c.Set(CurrentClaimsContextKey, claims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			var missing *echojwt.TokenExtractionError
			if errors.As(err, &missing) {
				return nil // Anonymous
			}
			return apierror.Unauthorized("Invalid login credentials.")
		},
		ContinueOnIgnoredError: true,
	})
}

// CurrentClaims returns the claims of the request's token or nil for anonymous requests.
func CurrentClaims(c echo.Context) *libub.Claims {
	claims, ok := c.Get(CurrentClaimsContextKey).(*libub.Claims)
	if ok {
		return claims
	}
	return nil
}

// RequireAdmin returns a middleware rejecting the requests not performed by an admin.
// Requests matching the skipper are accepted from anyone.
func RequireAdmin(skipper middleware.Skipper) echo.MiddlewareFunc {
	if skipper == nil {
		skipper = middleware.DefaultSkipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}

			claims := CurrentClaims(c)
			if claims == nil {
				return apierror.Unauthorized("Authentication required.")
			}
			if !claims.IsAdmin() {
				return apierror.NewWithTagCode(http.StatusForbidden, apierror.TagForbidden, "Admin role required.")
			}
			return next(c)
		}
	}
}
