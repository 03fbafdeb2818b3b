package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	mw "github.com/ecocleans/booking-agent/internal/middleware"
)

// NewRouter creates a configured Echo instance. Browsers from origins may
// call the API; "*" allows any origin.
func NewRouter(log *zap.Logger, origins []string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	logValues := func(c echo.Context, v middleware.RequestLoggerValues) error {
		fields := []zap.Field{
			zap.String("method", v.Method),
			zap.String("uri", v.URI),
			zap.Int("status", v.Status),
			zap.Duration("latency", v.Latency),
			zap.String("remote_ip", v.RemoteIP),
		}
		if v.Error != nil {
			log.Warn("request", append(fields, zap.Error(v.Error))...)
			return nil
		}
		log.Info("request", fields...)
		return nil
	}
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:     true,
		LogURI:        true,
		LogStatus:     true,
		LogLatency:    true,
		LogRemoteIP:   true,
		LogError:      true,
		HandleError:   true,
		LogValuesFunc: logValues,
	}))
	e.Use(middleware.Recover())

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization, mw.SignatureHeader},
	}))
	return e
}
