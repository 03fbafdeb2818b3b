package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ecocleans/booking-agent/internal/agent"
	"github.com/ecocleans/booking-agent/internal/booking"
	"github.com/ecocleans/booking-agent/internal/chat"
	"github.com/ecocleans/booking-agent/internal/extract"
	"github.com/ecocleans/booking-agent/internal/infra/storage"
	mw "github.com/ecocleans/booking-agent/internal/middleware"
	"github.com/ecocleans/booking-agent/internal/prompt"
	"github.com/ecocleans/booking-agent/internal/rtc"
	"github.com/ecocleans/booking-agent/internal/voice"
)

const maxMessageChars = 5000

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

type chatRequest struct {
	History           []chat.Turn `json:"history"`
	Message           string      `json:"message"`
	SystemInstruction string      `json:"systemInstruction"`
}

func (s *Server) chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return errorJSON(c, http.StatusBadRequest, "Message is required")
	}
	if utf8.RuneCountInString(req.Message) > maxMessageChars {
		return errorJSON(c, http.StatusBadRequest, "Message too long")
	}
	if s.deps.Text == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "AI service not configured")
	}
	if req.SystemInstruction == "" {
		req.SystemInstruction = prompt.SystemInstruction
	}

	reply, err := s.deps.Text.Reply(c.Request().Context(), chat.Request{
		History:           req.History,
		Message:           req.Message,
		SystemInstruction: req.SystemInstruction,
	})
	if err != nil {
		s.log.Error("chat model failed", zap.Error(err))
		return errorJSON(c, http.StatusBadGateway, "Failed to get AI response")
	}
	return c.JSON(http.StatusOK, map[string]string{"response": reply})
}

func (s *Server) voiceToken(c echo.Context) error {
	if s.deps.Config.GeminiKey == "" || s.deps.Live == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "Voice mode is unavailable")
	}
	id, _ := mw.Identity(c)
	ticket, exp, err := s.deps.Tickets.Issue(id.Subject)
	if err != nil {
		s.log.Error("issue ticket failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "Failed to issue token")
	}
	return c.JSON(http.StatusOK, map[string]any{"ticket": ticket, "expiresAt": exp})
}

type bookingRequest struct {
	ID string `json:"id"`
	booking.Draft
}

func (s *Server) saveBooking(c echo.Context) error {
	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	id, err := s.deps.Gateway.Reconcile(c.Request().Context(), req.ID, req.Draft)
	switch {
	case errors.Is(err, booking.ErrNothingToSave):
		return errorJSON(c, http.StatusBadRequest, "No valid booking fields provided")
	case errors.Is(err, booking.ErrInvalidID):
		return errorJSON(c, http.StatusBadRequest, "Invalid booking ID format")
	case err != nil:
		return errorJSON(c, http.StatusInternalServerError, "Failed to save booking")
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "success": true})
}

func (s *Server) getBooking(c echo.Context) error {
	if id, _ := mw.Identity(c); id.Role != "admin" {
		return errorJSON(c, http.StatusForbidden, "Admin access required")
	}
	if s.deps.Bookings == nil {
		return errorJSON(c, http.StatusNotImplemented, "Booking lookup not supported by this store")
	}
	bookingID := c.Param("id")
	if _, err := uuid.Parse(bookingID); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid booking ID format")
	}
	rec, err := s.deps.Bookings.Get(c.Request().Context(), bookingID)
	if errors.Is(err, storage.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "Booking not found")
	}
	if err != nil {
		s.log.Error("load booking failed", zap.String("id", bookingID), zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "Failed to load booking")
	}
	return c.JSON(http.StatusOK, rec)
}

// notificationRequest is the booking as submitted by the booking form; the
// record id is optional.
type notificationRequest struct {
	BookingID string `json:"bookingId"`
	booking.Draft
}

func (s *Server) notifyBooking(c echo.Context) error {
	var req notificationRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.Draft.IsEmpty() {
		return errorJSON(c, http.StatusBadRequest, "Booking details are required")
	}
	if s.deps.Notifier == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "Notifications not configured")
	}
	if err := s.deps.Notifier.BookingCreated(c.Request().Context(), req.BookingID, req.Draft); err != nil {
		s.log.Warn("booking notification failed", zap.String("id", req.BookingID), zap.Error(err))
		return errorJSON(c, http.StatusBadGateway, "Failed to send notification")
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) dialog(c echo.Context) error {
	subject, err := s.deps.Tickets.Redeem(c.QueryParam("ticket"))
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "invalid or expired ticket")
	}
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}
	log := s.log.With(zap.String("conversation", uuid.NewString()), zap.String("user", subject))
	log.Info("dialog connected")
	rtc.Serve(s.base, ws, s.dialogFactory(subject, log), s.deps.Config.ICEServersJSON, log)
	log.Info("dialog closed")
	return nil
}

// dialogFactory wires one conversation: a Recorder shared by the text and
// voice controllers so a mode switch keeps the same record.
func (s *Server) dialogFactory(subject string, log *zap.Logger) rtc.DialogFactory {
	cfg := s.deps.Config
	return func(dev *rtc.Device) *agent.Dialog {
		rec := booking.NewRecorder(s.deps.Gateway, log)

		model := s.deps.Text
		if s.deps.Limiter != nil {
			model = chat.WithRateLimit(model, s.deps.Limiter, "user:"+subject, log)
		}
		text := chat.NewController(model, rec,
			chat.WithExtractor(extract.FromText),
			chat.WithInstruction(prompt.SystemInstruction),
			chat.WithLogger(log),
		)

		creds := voice.CredentialFunc(func(context.Context) (string, error) {
			return cfg.GeminiKey, nil
		})
		live := voice.NewController(creds, s.deps.Live, dev, rec, voice.LiveConfig{
			Voice:             cfg.GeminiVoice,
			SystemInstruction: prompt.SystemInstruction,
			Transcribe:        true,
		}, log)

		return agent.NewDialog(text, live, rec, log)
	}
}
