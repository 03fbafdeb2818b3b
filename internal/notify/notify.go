package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ecocleans/booking-agent/internal/booking"
	"github.com/ecocleans/booking-agent/internal/metrics"
)

// Channel is one way of reaching the business.
type Channel interface {
	Name() string
	Send(ctx context.Context, id string, d booking.Draft) error
}

// Multi sends to every channel and reports the combined failure.
type Multi struct {
	channels []Channel
	log      *zap.Logger
}

// NewMulti fans out to channels in order.
func NewMulti(log *zap.Logger, channels ...Channel) *Multi {
	if log == nil {
		log = zap.NewNop()
	}
	return &Multi{channels: channels, log: log.Named("notify")}
}

// BookingCreated implements booking.Notifier. Unconfigured channels are
// skipped. A failing channel does not stop the others.
func (m *Multi) BookingCreated(ctx context.Context, id string, d booking.Draft) error {
	var errs []error
	for _, ch := range m.channels {
		err := ch.Send(ctx, id, d)
		switch {
		case err == nil:
			metrics.Notifications.WithLabelValues(ch.Name(), "sent").Inc()
			m.log.Info("booking notification sent", zap.String("channel", ch.Name()), zap.String("id", id))
		case errors.Is(err, ErrNotConfigured):
			metrics.Notifications.WithLabelValues(ch.Name(), "skipped").Inc()
			m.log.Debug("notification channel not configured", zap.String("channel", ch.Name()))
		default:
			metrics.Notifications.WithLabelValues(ch.Name(), "failed").Inc()
			m.log.Warn("booking notification failed", zap.String("channel", ch.Name()), zap.String("id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
		}
	}
	return errors.Join(errs...)
}
