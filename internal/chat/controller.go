package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ecocleans/booking-agent/internal/booking"
	"github.com/ecocleans/booking-agent/internal/metrics"
)

const (
	failureText     = "Error: Could not reach Ecocleans agent."
	rateLimitedText = "We're getting a lot of messages right now. Please try again shortly."
)

// Controller runs a turn-based conversation: one request in flight at a
// time, transcript appended in send/receive order.
type Controller struct {
	model       Model
	sink        Sink
	extract     func(string) booking.Draft
	instruction string
	log         *zap.Logger
	now         func() time.Time
	newID       func() string

	mu       sync.Mutex
	busy     bool
	gen      uint64
	messages []Message
	onChange func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithExtractor sets the function that pulls booking fields from a turn.
func WithExtractor(fn func(string) booking.Draft) Option {
	return func(c *Controller) { c.extract = fn }
}

// WithInstruction sets the system instruction sent with every request.
func WithInstruction(s string) Option {
	return func(c *Controller) { c.instruction = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// NewController returns an idle controller with an empty transcript.
func NewController(model Model, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		model: model,
		sink:  sink,
		log:   zap.NewNop(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnChange registers fn to run after every transcript or loading change.
func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// Send appends text as a user turn and waits for the model's reply.
// It returns ErrEmptyMessage or ErrBusy without side effects. Model errors
// are recorded as a system entry and also returned.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	gen := c.gen
	req := Request{History: c.historyLocked(), Message: text, SystemInstruction: c.instruction}
	c.messages = append(c.messages, c.entry(RoleUser, text))
	c.mu.Unlock()
	c.changed()

	reply, err := c.model.Reply(ctx, req)
	reply = strings.TrimSpace(reply)
	if err == nil && reply == "" {
		err = errors.New("empty response")
	}

	c.mu.Lock()
	c.busy = false
	stale := gen != c.gen
	if !stale {
		if err != nil {
			c.messages = append(c.messages, c.entry(RoleSystem, failureMessage(err)))
		} else {
			c.messages = append(c.messages, c.entry(RoleModel, reply))
		}
	}
	c.mu.Unlock()
	c.changed()

	switch {
	case stale:
		return nil
	case errors.Is(err, ErrRateLimited):
		metrics.ChatTurns.WithLabelValues("rate_limited").Inc()
		return err
	case err != nil:
		metrics.ChatTurns.WithLabelValues("error").Inc()
		c.log.Warn("chat turn failed", zap.Error(err))
		return fmt.Errorf("chat reply: %w", err)
	}
	metrics.ChatTurns.WithLabelValues("ok").Inc()

	if c.extract == nil || c.sink == nil {
		return nil
	}
	found := c.extract(text + "\n" + reply)
	if found.IsEmpty() {
		return nil
	}
	if _, err := c.sink.Apply(ctx, found); err != nil {
		c.log.Warn("booking update from chat failed", zap.Error(err))
	}
	return nil
}

func failureMessage(err error) string {
	if errors.Is(err, ErrRateLimited) {
		return rateLimitedText
	}
	return failureText
}

func (c *Controller) historyLocked() []Turn {
	turns := make([]Turn, 0, len(c.messages))
	for _, m := range c.messages {
		if m.Role == RoleSystem {
			continue
		}
		turns = append(turns, Turn{Role: m.Role, Text: m.Text})
	}
	return turns
}

func (c *Controller) entry(role Role, text string) Message {
	ts := c.now()
	if n := len(c.messages); n > 0 && ts.Before(c.messages[n-1].Timestamp) {
		ts = c.messages[n-1].Timestamp
	}
	return Message{ID: c.newID(), Role: role, Text: text, Timestamp: ts}
}

func (c *Controller) changed() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Messages returns a copy of the transcript.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Loading reports whether a request is in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Reset clears the transcript. A reply still in flight is discarded when it lands.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.messages = nil
	c.gen++
	c.mu.Unlock()
	c.changed()
}

// WithRateLimit wraps m so requests beyond l's allowance for key fail with
// ErrRateLimited instead of reaching the model. Limiter errors let the
// request through.
func WithRateLimit(m Model, l Limiter, key string, log *zap.Logger) Model {
	if log == nil {
		log = zap.NewNop()
	}
	return ModelFunc(func(ctx context.Context, req Request) (string, error) {
		ok, retry, err := l.Allow(ctx, key)
		if err != nil {
			log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			return m.Reply(ctx, req)
		}
		if !ok {
			return "", fmt.Errorf("%w: retry in %s", ErrRateLimited, retry.Round(time.Second))
		}
		return m.Reply(ctx, req)
	})
}
