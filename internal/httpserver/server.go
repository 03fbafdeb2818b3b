package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ecocleans/booking-agent/internal/booking"
	"github.com/ecocleans/booking-agent/internal/chat"
	"github.com/ecocleans/booking-agent/internal/config"
	mw "github.com/ecocleans/booking-agent/internal/middleware"
	"github.com/ecocleans/booking-agent/internal/ratelimit"
	"github.com/ecocleans/booking-agent/internal/rtc"
	"github.com/ecocleans/booking-agent/internal/voice"
)

// BookingReader loads stored records for the admin lookup.
type BookingReader interface {
	Get(ctx context.Context, id string) (booking.Record, error)
}

// TicketIssuer hands out and redeems dialog tickets.
type TicketIssuer interface {
	Issue(subject string) (string, time.Time, error)
	Redeem(raw string) (string, error)
}

// Deps are the collaborators behind the routes. Nil Notifier, Bookings or
// Limiter disable the matching feature.
type Deps struct {
	Config   config.Config
	Log      *zap.Logger
	Text     chat.Model
	Live     voice.Dialer
	Gateway  booking.Reconciler
	Bookings BookingReader
	Notifier booking.Notifier
	Limiter  ratelimit.Limiter
	Verifier mw.IdentityVerifier
	Tickets  TicketIssuer
}

// Server bundles HTTP router and dependencies.
type Server struct {
	Router *echo.Echo

	deps     Deps
	log      *zap.Logger
	upgrader *websocket.Upgrader
	// base outlives requests; CloseDialogs cancels it.
	base   context.Context
	cancel context.CancelFunc
}

// New constructs the HTTP server with routes.
func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		Router:   NewRouter(d.Log.Named("http"), d.Config.AllowedOrigins),
		deps:     d,
		log:      d.Log,
		upgrader: rtc.NewUpgrader(d.Config.AllowedOrigins),
		base:     base,
		cancel:   cancel,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.Router
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	bearer := mw.BearerAuth(s.deps.Verifier)
	api := e.Group("/api", bearer)
	chatRoute := []echo.MiddlewareFunc{}
	if s.deps.Limiter != nil {
		chatRoute = append(chatRoute, mw.RateLimit(s.deps.Limiter, mw.KeyByIdentityOrIP, s.log))
	}
	api.POST("/chat", s.chat, chatRoute...)
	api.POST("/voice/token", s.voiceToken)
	api.POST("/bookings", s.saveBooking)
	api.GET("/bookings/:id", s.getBooking)

	secret := s.deps.Config.InternalSecret
	e.POST("/internal/notifications/booking", s.notifyBooking, mw.SignedBody(func() string { return secret }))

	e.GET("/ws/agent", s.dialog)
}

// CloseDialogs ends every open dialog websocket. http.Server.Shutdown does
// not wait for hijacked connections.
func (s *Server) CloseDialogs() {
	s.cancel()
}
