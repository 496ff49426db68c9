package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	argon2 "github.com/mdouchement/simple-argon2"
	"github.com/mdouchement/unionboard/internal/apierror"
	"github.com/mdouchement/unionboard/pkg/libub"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Issuer is the issuer of the access tokens.
const Issuer = "unionboard"

// auth contains all authentication handlers.
type auth struct {
	admins     map[string]string
	signingKey []byte
	ttl        time.Duration
	logger     logrus.FieldLogger
}

///// Token
////
//

// Token authenticates an admin and returns an access token.
func (h *auth) Token(c echo.Context) error {
	// Filter params
	var params struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&params); err != nil {
		h.logger.WithError(err).Debug("Could not get parameters")
		return c.JSON(http.StatusBadRequest, apierror.New("Could not get credentials."))
	}

	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" || params.Password == "" {
		return c.JSON(http.StatusBadRequest, apierror.New("No email or password provided."))
	}

	hash, ok := h.admins[email]
	if !ok {
		return apierror.Unauthorized("Invalid email or password.")
	}

	if err := argon2.CompareHashAndPasswordString(hash, params.Password); err != nil {
		if err == argon2.ErrMismatchedHashAndPassword {
			return apierror.Unauthorized("Invalid email or password.")
		}
		return errors.Wrap(err, "could not compare passwords")
	}

	token, err := h.TokenFor(email)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int64(h.ttl.Seconds()),
	})
}

// TokenFor returns a signed admin access token for the given email.
func (h *auth) TokenFor(email string) (string, error) {
	now := time.Now()
	claims := libub.Claims{
		Role: libub.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.Must(uuid.NewV4()).String(),
			Issuer:    Issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.signingKey)
	return token, errors.Wrap(err, "could not sign token")
}
