package voice

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ecocleans/booking-agent/internal/audio"
	"github.com/ecocleans/booking-agent/internal/booking"
)

type fakeSession struct {
	events   chan Event
	errs     chan error
	closedCh chan struct{}
	once     sync.Once

	mu        sync.Mutex
	sent      [][]byte
	responses [][]ToolResult
	closes    int
	trace     *trace
}

func newFakeSession(tr *trace) *fakeSession {
	return &fakeSession{events: make(chan Event, 8), errs: make(chan error, 1), closedCh: make(chan struct{}), trace: tr}
}

func (s *fakeSession) SendAudio(pcm []byte) error {
	s.mu.Lock()
	s.sent = append(s.sent, pcm)
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) SendToolResponses(r []ToolResult) error {
	s.trace.add("ack")
	s.mu.Lock()
	s.responses = append(s.responses, r)
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) Receive() (Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case err := <-s.errs:
		return Event{}, err
	case <-s.closedCh:
		return Event{}, errors.New("session closed")
	}
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.once.Do(func() { close(s.closedCh) })
	return nil
}

type trace struct {
	mu    sync.Mutex
	steps []string
}

func (t *trace) add(s string) {
	t.mu.Lock()
	t.steps = append(t.steps, s)
	t.mu.Unlock()
}

func (t *trace) get() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.steps...)
}

type fakeDialer struct {
	sess *fakeSession
	cfg  LiveConfig
	err  error
}

func (d *fakeDialer) Dial(ctx context.Context, cred string, cfg LiveConfig) (LiveSession, error) {
	d.cfg = cfg
	if d.err != nil {
		return nil, d.err
	}
	return d.sess, nil
}

type fakeMic struct {
	mu      sync.Mutex
	onFrame func([]float32)
	closes  int
}

func (m *fakeMic) Start(n int, fn func([]float32)) error {
	m.mu.Lock()
	m.onFrame = fn
	m.mu.Unlock()
	return nil
}

func (m *fakeMic) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	return nil
}

func (m *fakeMic) push(frame []float32) {
	m.mu.Lock()
	fn := m.onFrame
	m.mu.Unlock()
	fn(frame)
}

type fakeSpeaker struct {
	*audio.Timeline
	mu      sync.Mutex
	starts  int
	stops   int
	closeCt int
}

type countingStop struct {
	inner audio.Stopper
	spk   *fakeSpeaker
}

func (s countingStop) Stop() {
	s.inner.Stop()
	s.spk.mu.Lock()
	s.spk.stops++
	s.spk.mu.Unlock()
}

func (s *fakeSpeaker) Start(samples []float32, at time.Duration, done func()) (audio.Stopper, error) {
	st, err := s.Timeline.Start(samples, at, done)
	s.mu.Lock()
	s.starts++
	s.mu.Unlock()
	return countingStop{st, s}, err
}

func (s *fakeSpeaker) Close() error {
	s.mu.Lock()
	s.closeCt++
	s.mu.Unlock()
	return nil
}

func (s *fakeSpeaker) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts, s.stops
}

type fakeDevice struct {
	mic        *fakeMic
	spk        *fakeSpeaker
	micOpens   int
	constraint Constraints
}

func (d *fakeDevice) OpenMicrophone(ctx context.Context, c Constraints) (Microphone, error) {
	d.micOpens++
	d.constraint = c
	return d.mic, nil
}

func (d *fakeDevice) OpenSpeaker(ctx context.Context, rate int) (Speaker, error) {
	return d.spk, nil
}

type traceSink struct {
	tr      *trace
	mu      sync.Mutex
	updates []booking.Draft
}

func (s *traceSink) Apply(ctx context.Context, d booking.Draft) (booking.Draft, error) {
	s.tr.add("apply")
	s.mu.Lock()
	s.updates = append(s.updates, d)
	s.mu.Unlock()
	return d, nil
}

type harness struct {
	c    *Controller
	sess *fakeSession
	dev  *fakeDevice
	sink *traceSink
	tr   *trace
}

func newHarness(cred string) *harness {
	tr := &trace{}
	sess := newFakeSession(tr)
	dev := &fakeDevice{mic: &fakeMic{}, spk: &fakeSpeaker{Timeline: audio.NewTimeline(audio.PlaybackRate)}}
	sink := &traceSink{tr: tr}
	creds := CredentialFunc(func(ctx context.Context) (string, error) { return cred, nil })
	c := NewController(creds, &fakeDialer{sess: sess}, dev, sink, LiveConfig{Voice: "Zephyr", Transcribe: true}, nil)
	return &harness{c: c, sess: sess, dev: dev, sink: sink, tr: tr}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestConnect_UnavailableWithoutCredential(t *testing.T) {
	h := newHarness("")
	err := h.c.Connect(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if h.c.Connected() {
		t.Fatalf("should not be connected")
	}
	if h.c.Error() != unavailableText {
		t.Fatalf("unexpected error text %q", h.c.Error())
	}
	if h.dev.micOpens != 0 {
		t.Fatalf("microphone must not be opened")
	}
}

func TestConnect_OpensDevicesAndSession(t *testing.T) {
	h := newHarness("key")
	var states []State
	var mu sync.Mutex
	h.c.SetEvents(Events{OnState: func(s State, _ string) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}})
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer h.c.Disconnect()
	if !h.c.Connected() {
		t.Fatalf("expected connected")
	}
	c := h.dev.constraint
	if c.SampleRate != audio.CaptureRate || !c.EchoCancellation || !c.NoiseSuppression || !c.AutoGainControl {
		t.Fatalf("unexpected constraints %+v", c)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 || states[0] != StateConnecting || states[len(states)-1] != StateConnected {
		t.Fatalf("unexpected transitions %v", states)
	}
}

func TestToolCall_MergesThenAcknowledges(t *testing.T) {
	h := newHarness("key")
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer h.c.Disconnect()

	h.sess.events <- Event{ToolCalls: []ToolCall{
		{ID: "1", Name: "update_booking_details", Args: map[string]any{"address": "123 Main St"}},
		{ID: "2", Name: "book_flight", Args: map[string]any{}},
	}}
	waitFor(t, func() bool {
		h.sess.mu.Lock()
		defer h.sess.mu.Unlock()
		return len(h.sess.responses) == 1
	})

	steps := h.tr.get()
	if len(steps) != 2 || steps[0] != "apply" || steps[1] != "ack" {
		t.Fatalf("expected apply before ack, got %v", steps)
	}
	if h.sink.updates[0].Address != "123 Main St" {
		t.Fatalf("unexpected update %+v", h.sink.updates[0])
	}
	res := h.sess.responses[0]
	if len(res) != 2 || res[0].ID != "1" || res[0].Response["result"] != toolOKText {
		t.Fatalf("unexpected known-tool result %+v", res)
	}
	if res[1].ID != "2" || res[1].Response["result"] != unknownToolText {
		t.Fatalf("unknown tool must still be answered, got %+v", res[1])
	}
}

func TestAudioAndInterruption(t *testing.T) {
	h := newHarness("key")
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer h.c.Disconnect()

	chunk := audio.EncodePCM16(make([]float32, 2400))
	h.sess.events <- Event{Audio: chunk}
	h.sess.events <- Event{Audio: chunk}
	waitFor(t, func() bool { s, _ := h.dev.spk.counts(); return s == 2 })

	h.sess.events <- Event{Interrupted: true}
	waitFor(t, func() bool { _, st := h.dev.spk.counts(); return st == 2 })
	if h.dev.spk.Active() {
		t.Fatalf("expected nothing scheduled after interruption")
	}
}

func TestCapture_UploadsFramesAndMetersVolume(t *testing.T) {
	h := newHarness("key")
	var level float64
	var mu sync.Mutex
	h.c.SetEvents(Events{OnVolume: func(v float64) {
		mu.Lock()
		level = v
		mu.Unlock()
	}})
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer h.c.Disconnect()

	frame := make([]float32, audio.FrameSamples)
	for i := range frame {
		frame[i] = 0.25
	}
	h.dev.mic.push(frame)
	waitFor(t, func() bool {
		h.sess.mu.Lock()
		defer h.sess.mu.Unlock()
		return len(h.sess.sent) == 1
	})
	if n := len(h.sess.sent[0]); n != audio.FrameSamples*2 {
		t.Fatalf("expected %d bytes, got %d", audio.FrameSamples*2, n)
	}
	mu.Lock()
	defer mu.Unlock()
	if level < 0.24 || level > 0.26 {
		t.Fatalf("unexpected level %v", level)
	}
}

func TestReceiveError_SetsErrorAndTearsDown(t *testing.T) {
	h := newHarness("key")
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h.sess.errs <- errors.New("socket reset")
	waitFor(t, func() bool {
		h.dev.mic.mu.Lock()
		defer h.dev.mic.mu.Unlock()
		return h.c.State() == StateError && h.dev.mic.closes == 1
	})
	if h.c.Error() != connectionText {
		t.Fatalf("unexpected error %q", h.c.Error())
	}
	if h.c.Volume() != 0 {
		t.Fatalf("volume should reset")
	}
}

func TestReceiveEOF_DisconnectsWithoutError(t *testing.T) {
	h := newHarness("key")
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h.sess.errs <- io.EOF
	waitFor(t, func() bool {
		h.dev.mic.mu.Lock()
		defer h.dev.mic.mu.Unlock()
		return h.c.State() == StateDisconnected && h.dev.mic.closes == 1
	})
	if h.c.Error() != "" {
		t.Fatalf("clean close must not report an error, got %q", h.c.Error())
	}
}

func TestDisconnect_Idempotent(t *testing.T) {
	h := newHarness("key")
	h.c.Disconnect()
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	h.c.Disconnect()
	h.c.Disconnect()
	if h.c.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", h.c.State())
	}
	h.sess.mu.Lock()
	closes := h.sess.closes
	h.sess.mu.Unlock()
	if closes != 1 || h.dev.mic.closes != 1 || h.dev.spk.closeCt != 1 {
		t.Fatalf("resources closed more than once: sess=%d mic=%d spk=%d", closes, h.dev.mic.closes, h.dev.spk.closeCt)
	}
}

func TestConnect_DialFailure(t *testing.T) {
	h := newHarness("key")
	h.c.dialer = &fakeDialer{err: errors.New("handshake failed")}
	if err := h.c.Connect(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if h.c.State() != StateError || h.c.Error() != connectionText {
		t.Fatalf("unexpected state %s / %q", h.c.State(), h.c.Error())
	}
	if h.dev.mic.closes != 1 {
		t.Fatalf("microphone should be released after dial failure")
	}
}
