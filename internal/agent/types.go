package agent

import (
	"context"
	"errors"

	"github.com/ecocleans/booking-agent/internal/booking"
	"github.com/ecocleans/booking-agent/internal/chat"
	"github.com/ecocleans/booking-agent/internal/voice"
)

// Mode selects which controller owns the conversation.
type Mode string

const (
	ModeVoice Mode = "voice"
	ModeText  Mode = "text"
)

var (
	// ErrClosed is returned for conversation actions while the surface is closed.
	ErrClosed = errors.New("agent: dialog is closed")
	// ErrWrongMode is returned when an action belongs to the other mode.
	ErrWrongMode = errors.New("agent: action not available in this mode")
	ErrBadMode   = errors.New("agent: unknown mode")
)

// TextSession is the turn-based controller.
type TextSession interface {
	Send(ctx context.Context, text string) error
	Messages() []chat.Message
	Loading() bool
	Reset()
	OnChange(fn func())
}

// VoiceSession is the streaming controller.
type VoiceSession interface {
	Connect(ctx context.Context) error
	Disconnect()
	State() voice.State
	Error() string
	Volume() float64
	SetEvents(e voice.Events)
}

// Draftbook holds the conversation's booking draft.
type Draftbook interface {
	Draft() booking.Draft
	ID() string
	Reset()
	OnChange(fn func(booking.Draft))
}

// Detail is one labelled booking value for display.
type Detail struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Snapshot is the full dialog state shown to the user.
type Snapshot struct {
	Open       bool           `json:"open"`
	Mode       Mode           `json:"mode"`
	Connected  bool           `json:"connected"`
	VoiceState voice.State    `json:"voiceState"`
	Volume     float64        `json:"volume"`
	VoiceError string         `json:"voiceError,omitempty"`
	Loading    bool           `json:"loading"`
	Messages   []chat.Message `json:"messages"`
	Booking    booking.Draft  `json:"booking"`
	BookingID  string         `json:"bookingId,omitempty"`
	Details    []Detail       `json:"details"`
}
