package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"github.com/ecocleans/booking-agent/internal/booking"
)

const maxSMSLen = 320

// Twilio long codes accept about one message per second.
const smsInterval = time.Second

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMS texts a short booking alert through Twilio.
type SMS struct {
	api  messageCreator
	from string
	to   string
	pace *rate.Limiter
}

// NewSMS returns a Twilio sender. Missing credentials or numbers disable the
// channel.
func NewSMS(accountSID, authToken, from, to string) *SMS {
	s := &SMS{from: from, to: to, pace: rate.NewLimiter(rate.Every(smsInterval), 1)}
	if accountSID != "" && authToken != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		})
		s.api = client.Api
	}
	return s
}

// Name implements Channel.
func (s *SMS) Name() string { return "sms" }

// Send implements Channel. Sends are paced to the long-code rate. The Twilio
// client is synchronous; ctx only bounds the wait for a send slot.
func (s *SMS) Send(ctx context.Context, id string, d booking.Draft) error {
	if s.api == nil || s.from == "" || s.to == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.pace != nil {
		if err := s.pace.Wait(ctx); err != nil {
			return fmt.Errorf("sms pacing: %w", err)
		}
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(s.to)
	params.SetFrom(s.from)
	params.SetBody(SMSBody(id, d))
	if _, err := s.api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio create message: %w", err)
	}
	return nil
}

// SMSBody is the text message for a new booking.
func SMSBody(id string, d booking.Draft) string {
	sum := Summarize(id, d)
	var b strings.Builder
	fmt.Fprintf(&b, "New Ecocleans booking: %s", sum.CustomerName)
	if d.PhoneNumber != "" {
		fmt.Fprintf(&b, ", %s", d.PhoneNumber)
	}
	if d.ScheduleDate != "" {
		fmt.Fprintf(&b, ", %s", d.ScheduleDate)
	}
	if d.Address != "" {
		fmt.Fprintf(&b, ", %s", d.Address)
	}
	fmt.Fprintf(&b, ". Ref %s", id)
	out := b.String()
	if r := []rune(out); len(r) > maxSMSLen {
		out = string(r[:maxSMSLen])
	}
	return out
}
