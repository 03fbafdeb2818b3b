package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

// SignatureHeader carries hex(HMAC-SHA256(secret, body)).
const SignatureHeader = "X-Signature"

const maxSignedBody = 1 << 20

// Sign returns the signature for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret, signature string, body []byte) bool {
	if secret == "" || signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(secret, body)))
}

// SignedBody rejects requests whose body is not signed with the shared
// secret. The body is restored for the handler.
func SignedBody(getSecret func() string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			secret := getSecret()
			if secret == "" {
				return c.JSON(http.StatusInternalServerError, errorBody("INTERNAL_NOTIFY_SECRET not configured"))
			}

			body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSignedBody))
			if err != nil {
				return c.JSON(http.StatusBadRequest, errorBody("failed to read request body"))
			}
			if !validSignature(secret, c.Request().Header.Get(SignatureHeader), body) {
				return c.JSON(http.StatusUnauthorized, errorBody("invalid signature"))
			}

			c.Request().Body = io.NopCloser(bytes.NewReader(body))
			return next(c)
		}
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
