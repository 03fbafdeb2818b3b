package chat

import (
	"context"
	"errors"
	"time"

	"github.com/ecocleans/booking-agent/internal/booking"
)

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	// RoleSystem marks locally generated notices. They are never sent to the model.
	RoleSystem Role = "system"
)

var (
	ErrBusy         = errors.New("chat: a message is already in flight")
	ErrEmptyMessage = errors.New("chat: empty message")
	// ErrRateLimited is returned by models that rejected the caller for sending too often.
	ErrRateLimited = errors.New("chat: rate limited")
)

// Message is one transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Turn is one prior exchange sent to the model as history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Request is a single text-model call.
type Request struct {
	History           []Turn `json:"history"`
	Message           string `json:"message"`
	SystemInstruction string `json:"systemInstruction,omitempty"`
}

// Model answers one turn with the full response text.
type Model interface {
	Reply(ctx context.Context, req Request) (string, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req Request) (string, error)

func (f ModelFunc) Reply(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// Sink receives booking fields recognized in a turn.
type Sink interface {
	Apply(ctx context.Context, update booking.Draft) (booking.Draft, error)
}

// Limiter decides whether key may issue another request now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}
