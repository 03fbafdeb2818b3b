package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ecocleans/booking-agent/internal/ratelimit"
)

// KeyByIdentityOrIP keys the budget on the authenticated subject, falling
// back to the client IP.
func KeyByIdentityOrIP(c echo.Context) string {
	if id, ok := Identity(c); ok && id.Subject != "" {
		return "user:" + id.Subject
	}
	return "ip:" + c.RealIP()
}

// RateLimit answers 429 with Retry-After once key has spent its budget.
// Limiter errors let the request through.
func RateLimit(l ratelimit.Limiter, key func(echo.Context) string, log *zap.Logger) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, retry, err := l.Allow(c.Request().Context(), key(c))
			if err != nil {
				log.Warn("rate limiter unavailable", zap.Error(err))
				return next(c)
			}
			if ok {
				return next(c)
			}
			secs := int(math.Ceil(retry.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
			return c.JSON(http.StatusTooManyRequests, errorBody("Rate limit exceeded. Please wait a moment before trying again."))
		}
	}
}
