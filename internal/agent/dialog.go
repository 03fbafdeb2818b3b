// Package agent composes the text and voice controllers into one dialog
// with open/close lifecycle and mode switching.
package agent

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/ecocleans/booking-agent/internal/booking"
	"github.com/ecocleans/booking-agent/internal/voice"
)

// Dialog is one user's assistant surface.
type Dialog struct {
	text  TextSession
	voice VoiceSession
	book  Draftbook
	log   *zap.Logger

	mu           sync.Mutex
	open         bool
	opened       bool
	mode         Mode
	onUpdate     func(Snapshot)
	onTranscript func(role, text string)
}

// NewDialog wires the controllers. Both controllers must share book.
func NewDialog(text TextSession, v VoiceSession, book Draftbook, log *zap.Logger) *Dialog {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dialog{text: text, voice: v, book: book, log: log.Named("dialog"), mode: ModeVoice}
	text.OnChange(d.publish)
	book.OnChange(func(booking.Draft) { d.publish() })
	v.SetEvents(voice.Events{
		OnState:  func(voice.State, string) { d.publish() },
		OnVolume: func(float64) { d.publish() },
		OnTranscript: func(role, text string) {
			d.mu.Lock()
			fn := d.onTranscript
			d.mu.Unlock()
			if fn != nil {
				fn(role, text)
			}
		},
	})
	return d
}

// OnUpdate registers fn to receive a snapshot after every change.
func (d *Dialog) OnUpdate(fn func(Snapshot)) {
	d.mu.Lock()
	d.onUpdate = fn
	d.mu.Unlock()
}

// OnTranscript registers fn for live voice transcription fragments.
func (d *Dialog) OnTranscript(fn func(role, text string)) {
	d.mu.Lock()
	d.onTranscript = fn
	d.mu.Unlock()
}

// Open shows the surface. Reopening starts a fresh booking draft.
func (d *Dialog) Open() {
	d.mu.Lock()
	if d.open {
		d.mu.Unlock()
		return
	}
	reopen := d.opened
	d.open, d.opened = true, true
	d.mu.Unlock()

	if reopen {
		d.book.Reset()
	}
	d.log.Debug("dialog opened", zap.Bool("reopen", reopen))
	d.publish()
}

// Close hides the surface, ending any voice session first.
func (d *Dialog) Close() {
	d.voice.Disconnect()
	d.mu.Lock()
	d.open = false
	d.mu.Unlock()
	d.publish()
}

// SetMode switches between voice and text. Leaving voice ends the session.
func (d *Dialog) SetMode(m Mode) error {
	if m != ModeVoice && m != ModeText {
		return ErrBadMode
	}
	d.mu.Lock()
	prev := d.mode
	d.mu.Unlock()
	if prev == ModeVoice && m == ModeText {
		d.voice.Disconnect()
	}
	d.mu.Lock()
	d.mode = m
	d.mu.Unlock()
	d.publish()
	return nil
}

// ToggleCall connects the voice session, or disconnects it when live.
func (d *Dialog) ToggleCall(ctx context.Context) error {
	if err := d.require(ModeVoice); err != nil {
		return err
	}
	switch d.voice.State() {
	case voice.StateConnected, voice.StateConnecting:
		d.voice.Disconnect()
		return nil
	}
	if err := d.voice.Connect(ctx); err != nil {
		return err
	}
	// The dialog may have closed or left voice while the connect was in flight.
	if err := d.require(ModeVoice); err != nil {
		d.voice.Disconnect()
		return err
	}
	return nil
}

// Send submits a text turn.
func (d *Dialog) Send(ctx context.Context, text string) error {
	if err := d.require(ModeText); err != nil {
		return err
	}
	return d.text.Send(ctx, text)
}

// Reset clears the transcript and starts a new booking draft.
func (d *Dialog) Reset() {
	d.text.Reset()
	d.book.Reset()
}

func (d *Dialog) require(m Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return ErrClosed
	}
	if d.mode != m {
		return ErrWrongMode
	}
	return nil
}

// Snapshot returns the current state.
func (d *Dialog) Snapshot() Snapshot {
	d.mu.Lock()
	open, mode := d.open, d.mode
	d.mu.Unlock()

	draft := d.book.Draft()
	state := d.voice.State()
	return Snapshot{
		Open:       open,
		Mode:       mode,
		Connected:  state == voice.StateConnected,
		VoiceState: state,
		Volume:     d.voice.Volume(),
		VoiceError: d.voice.Error(),
		Loading:    d.text.Loading(),
		Messages:   d.text.Messages(),
		Booking:    draft,
		BookingID:  d.book.ID(),
		Details:    Details(draft),
	}
}

func (d *Dialog) publish() {
	d.mu.Lock()
	fn := d.onUpdate
	d.mu.Unlock()
	if fn != nil {
		fn(d.Snapshot())
	}
}

// Shutdown ends the voice session and detaches observers.
func (d *Dialog) Shutdown() {
	d.mu.Lock()
	d.onUpdate, d.onTranscript = nil, nil
	d.open = false
	d.mu.Unlock()
	d.voice.Disconnect()
}

// Details lists the collected booking values in display order.
func Details(b booking.Draft) []Detail {
	out := make([]Detail, 0, 10)
	add := func(label, v string) {
		if v != "" {
			out = append(out, Detail{Label: label, Value: v})
		}
	}
	num := func(v *float64) string {
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	}
	add("Name", b.CustomerName)
	add("Phone", b.PhoneNumber)
	add("Email", b.Email)
	add("Address", b.Address)
	add("Home Size", b.CleaningSize)
	add("Bedrooms", num(b.Bedrooms))
	add("Bathrooms", num(b.Bathrooms))
	add("Date", b.ScheduleDate)
	add("Frequency", b.CleaningFrequency)
	add("Notes", b.Notes)
	return out
}
