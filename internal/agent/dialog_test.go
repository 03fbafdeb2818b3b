package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ecocleans/booking-agent/internal/booking"
	"github.com/ecocleans/booking-agent/internal/chat"
	"github.com/ecocleans/booking-agent/internal/extract"
	"github.com/ecocleans/booking-agent/internal/voice"
)

type fakeVoice struct {
	mu          sync.Mutex
	state       voice.State
	connects    int
	disconnects int
	events      voice.Events
	connectErr  error
	entered     chan struct{}
	gate        chan struct{}
}

func (f *fakeVoice) Connect(ctx context.Context) error {
	if f.gate != nil {
		f.mu.Lock()
		f.state = voice.StateConnecting
		f.mu.Unlock()
		close(f.entered)
		<-f.gate
	}
	f.mu.Lock()
	f.connects++
	if f.connectErr != nil {
		f.state = voice.StateError
	} else {
		f.state = voice.StateConnected
	}
	err := f.connectErr
	ev := f.events
	f.mu.Unlock()
	if ev.OnState != nil {
		ev.OnState(f.State(), "")
	}
	return err
}

func (f *fakeVoice) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.state = voice.StateDisconnected
	f.mu.Unlock()
}

func (f *fakeVoice) State() voice.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == "" {
		return voice.StateDisconnected
	}
	return f.state
}

func (f *fakeVoice) Error() string            { return "" }
func (f *fakeVoice) Volume() float64          { return 0 }
func (f *fakeVoice) SetEvents(e voice.Events) { f.events = e }

type fakeStore struct {
	mu      sync.Mutex
	inserts int
	updates int
}

func (s *fakeStore) Insert(ctx context.Context, f booking.Fields) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	return "7f1c2e4a-7a43-4a53-9a7e-3c1b2f9d0e11", nil
}

func (s *fakeStore) Update(ctx context.Context, id string, f booking.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	return nil
}

type harness struct {
	d     *Dialog
	voice *fakeVoice
	store *fakeStore
	rec   *booking.Recorder
	snaps []Snapshot
	mu    sync.Mutex
}

func newHarness(replies ...string) *harness {
	store := &fakeStore{}
	rec := booking.NewRecorder(booking.NewGateway(store, nil, nil), nil)
	i := 0
	model := chat.ModelFunc(func(ctx context.Context, req chat.Request) (string, error) {
		if i >= len(replies) {
			return "", errors.New("no reply")
		}
		r := replies[i]
		i++
		return r, nil
	})
	text := chat.NewController(model, rec, chat.WithExtractor(extract.FromText))
	v := &fakeVoice{}
	h := &harness{voice: v, store: store, rec: rec}
	h.d = NewDialog(text, v, rec, nil)
	h.d.OnUpdate(func(s Snapshot) {
		h.mu.Lock()
		h.snaps = append(h.snaps, s)
		h.mu.Unlock()
	})
	return h
}

func TestDialog_DefaultsToVoiceAndClosed(t *testing.T) {
	h := newHarness()
	s := h.d.Snapshot()
	if s.Open || s.Mode != ModeVoice || s.Connected {
		t.Fatalf("unexpected initial snapshot %+v", s)
	}
	if err := h.d.ToggleCall(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDialog_TextConversationPersistsOnce(t *testing.T) {
	h := newHarness("Thanks Sarah! How many bedrooms?", "Got it, 3 bedrooms and 2 bathrooms.")
	h.d.Open()
	if err := h.d.SetMode(ModeText); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	ctx := context.Background()
	if err := h.d.Send(ctx, "My name is Sarah Jones and my phone is 204-555-1234"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := h.d.Send(ctx, "Actually it's 3 bedrooms 2 bathrooms"); err != nil {
		t.Fatalf("send: %v", err)
	}

	s := h.d.Snapshot()
	if len(s.Messages) != 4 {
		t.Fatalf("expected 4 transcript entries, got %d", len(s.Messages))
	}
	b := s.Booking
	if b.CustomerName != "Sarah Jones" || b.PhoneNumber != "204-555-1234" || *b.Bedrooms != 3 || *b.Bathrooms != 2 {
		t.Fatalf("unexpected booking %+v", b)
	}
	if h.store.inserts != 1 || h.store.updates != 1 {
		t.Fatalf("expected 1 insert and 1 update, got %d/%d", h.store.inserts, h.store.updates)
	}
	if s.BookingID == "" || len(s.Details) != 4 || s.Details[0].Label != "Name" {
		t.Fatalf("unexpected projection %+v", s.Details)
	}
	h.mu.Lock()
	n := len(h.snaps)
	h.mu.Unlock()
	if n == 0 {
		t.Fatalf("expected snapshots to be published")
	}
}

func TestDialog_ActionsGatedByMode(t *testing.T) {
	h := newHarness("hi")
	h.d.Open()
	if err := h.d.Send(context.Background(), "hello"); !errors.Is(err, ErrWrongMode) {
		t.Fatalf("text send in voice mode: %v", err)
	}
	h.d.SetMode(ModeText)
	if err := h.d.ToggleCall(context.Background()); !errors.Is(err, ErrWrongMode) {
		t.Fatalf("call in text mode: %v", err)
	}
	if err := h.d.SetMode("video"); !errors.Is(err, ErrBadMode) {
		t.Fatalf("expected ErrBadMode, got %v", err)
	}
}

func TestDialog_LeavingVoiceDisconnects(t *testing.T) {
	h := newHarness()
	h.d.Open()
	if err := h.d.ToggleCall(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !h.d.Snapshot().Connected {
		t.Fatalf("expected connected")
	}
	h.d.SetMode(ModeText)
	if h.voice.disconnects != 1 || h.d.Snapshot().Connected {
		t.Fatalf("switching to text must disconnect voice")
	}

	h.d.SetMode(ModeVoice)
	h.d.ToggleCall(context.Background())
	h.d.Close()
	if h.voice.disconnects != 2 || h.d.Snapshot().Open {
		t.Fatalf("closing must disconnect voice")
	}
}

func TestDialog_ToggleCallDisconnectsWhenLive(t *testing.T) {
	h := newHarness()
	h.d.Open()
	h.d.ToggleCall(context.Background())
	h.d.ToggleCall(context.Background())
	if h.voice.connects != 1 || h.voice.disconnects != 1 {
		t.Fatalf("expected connect then disconnect, got %d/%d", h.voice.connects, h.voice.disconnects)
	}
}

func TestDialog_ReopenStartsFreshDraft(t *testing.T) {
	h := newHarness()
	h.d.Open()
	if _, err := h.rec.Apply(context.Background(), booking.Draft{Address: "123 Main St"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	h.d.Close()
	if h.d.Snapshot().Booking.Address == "" {
		t.Fatalf("closing alone does not reset")
	}
	h.d.Open()
	s := h.d.Snapshot()
	if !s.Booking.IsEmpty() || s.BookingID != "" {
		t.Fatalf("reopen should start a fresh draft, got %+v", s.Booking)
	}
	if h.store.inserts != 1 {
		t.Fatalf("stored record must survive reset")
	}
}

func TestDialog_TranscriptForwarded(t *testing.T) {
	h := newHarness()
	var got []string
	h.d.OnTranscript(func(role, text string) { got = append(got, role+":"+text) })
	h.voice.events.OnTranscript("user", "hello")
	if len(got) != 1 || got[0] != "user:hello" {
		t.Fatalf("unexpected transcript %v", got)
	}
}

func TestDialog_ConnectLandingAfterModeSwitchIsTornDown(t *testing.T) {
	h := newHarness()
	h.voice.entered = make(chan struct{})
	h.voice.gate = make(chan struct{})
	h.d.Open()

	done := make(chan error, 1)
	go func() { done <- h.d.ToggleCall(context.Background()) }()
	<-h.voice.entered

	if err := h.d.SetMode(ModeText); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	close(h.voice.gate)

	if err := <-done; !errors.Is(err, ErrWrongMode) {
		t.Fatalf("expected ErrWrongMode, got %v", err)
	}
	if st := h.voice.State(); st != voice.StateDisconnected {
		t.Fatalf("voice must end disconnected, got %s", st)
	}
	if s := h.d.Snapshot(); s.Connected || s.Mode != ModeText {
		t.Fatalf("unexpected snapshot %+v", s)
	}
}

func TestDialog_ConnectLandingAfterCloseIsTornDown(t *testing.T) {
	h := newHarness()
	h.voice.entered = make(chan struct{})
	h.voice.gate = make(chan struct{})
	h.d.Open()

	done := make(chan error, 1)
	go func() { done <- h.d.ToggleCall(context.Background()) }()
	<-h.voice.entered

	h.d.Close()
	close(h.voice.gate)

	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if h.voice.State() != voice.StateDisconnected {
		t.Fatalf("voice must end disconnected after close")
	}
}
