// Package middleware holds the echo middleware shared by the API routes.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ecocleans/booking-agent/internal/auth"
)

const identityKey = "identity"

// IdentityVerifier checks a raw bearer token.
type IdentityVerifier interface {
	Verify(raw string) (auth.Identity, error)
}

// BearerAuth requires a valid bearer token and stores the identity on the
// context.
func BearerAuth(v IdentityVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := auth.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorBody("missing bearer token"))
			}
			id, err := v.Verify(raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorBody("invalid token"))
			}
			c.Set(identityKey, id)
			return next(c)
		}
	}
}

// Identity returns the caller stored by BearerAuth.
func Identity(c echo.Context) (auth.Identity, bool) {
	id, ok := c.Get(identityKey).(auth.Identity)
	return id, ok
}
