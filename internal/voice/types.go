package voice

import (
	"context"
	"errors"

	"github.com/ecocleans/booking-agent/internal/audio"
	"github.com/ecocleans/booking-agent/internal/booking"
)

// State is the lifecycle of one streaming session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// Role tags transcript fragments with the same names the text transcript uses.
type Role string

const (
	RoleCaller Role = "user"
	RoleAgent  Role = "model"
)

// ErrUnavailable means no credential could be obtained for the live model.
var ErrUnavailable = errors.New("voice: live model unavailable")

// CredentialSource hands out the short-lived key used to open a session.
// An empty key means voice mode is unavailable.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// CredentialFunc adapts a function to CredentialSource.
type CredentialFunc func(ctx context.Context) (string, error)

func (f CredentialFunc) Credential(ctx context.Context) (string, error) { return f(ctx) }

// LiveConfig is the per-session model configuration.
type LiveConfig struct {
	Voice             string
	SystemInstruction string
	// Transcribe enables transcripts of both the caller and the model.
	Transcribe bool
}

// Dialer opens a live model session.
type Dialer interface {
	Dial(ctx context.Context, credential string, cfg LiveConfig) (LiveSession, error)
}

// LiveSession is one open bidirectional model stream.
type LiveSession interface {
	// SendAudio uploads one 16 kHz PCM16 frame.
	SendAudio(pcm []byte) error
	SendToolResponses(results []ToolResult) error
	// Receive blocks for the next server event. It returns io.EOF once the
	// remote side has closed the stream normally.
	Receive() (Event, error)
	Close() error
}

// Event is one decoded server message.
type Event struct {
	// Audio is 24 kHz little-endian PCM16.
	Audio        []byte
	Interrupted  bool
	TurnComplete bool
	InputText    string
	OutputText   string
	ToolCalls    []ToolCall
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult answers one ToolCall.
type ToolResult struct {
	ID       string
	Name     string
	Response map[string]any
}

// Constraints are the capture settings requested from the microphone.
type Constraints struct {
	SampleRate       int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// Device provides audio input and output for a session.
type Device interface {
	OpenMicrophone(ctx context.Context, c Constraints) (Microphone, error)
	OpenSpeaker(ctx context.Context, rate int) (Speaker, error)
}

// Microphone delivers fixed-size capture frames.
type Microphone interface {
	// Start begins calling onFrame with frames of frameSamples samples.
	// onFrame must not block.
	Start(frameSamples int, onFrame func(frame []float32)) error
	Close() error
}

// Speaker plays scheduled buffers.
type Speaker interface {
	audio.Player
	Close() error
}

// Sink receives booking fields from tool calls.
type Sink interface {
	Apply(ctx context.Context, update booking.Draft) (booking.Draft, error)
}

// Events are optional observers. Callbacks run outside the controller lock.
type Events struct {
	OnState      func(state State, errMsg string)
	OnVolume     func(level float64)
	OnTranscript func(role, text string)
}
