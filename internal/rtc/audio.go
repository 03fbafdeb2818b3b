package rtc

import (
	"errors"
	"sync"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/ecocleans/booking-agent/internal/audio"
)

const (
	frameDuration = 20 * time.Millisecond
	opusRate      = 48000
	// 20ms at 48kHz
	opusFrameSamples = 960
)

// FrameSink receives one paced frame of playback samples.
type FrameSink interface {
	WriteFrame(samples []float32) error
}

// PacedSpeaker is a voice.Speaker that renders its timeline in 20ms frames
// and hands each frame to a sink. The timeline clock only advances while
// something is scheduled.
type PacedSpeaker struct {
	*audio.Timeline
	sink   FrameSink
	frame  []float32
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewPacedSpeaker starts the pacer for a speaker at rate.
func NewPacedSpeaker(rate int, sink FrameSink) *PacedSpeaker {
	s := &PacedSpeaker{
		Timeline: audio.NewTimeline(rate),
		sink:     sink,
		frame:    make([]float32, rate*int(frameDuration/time.Millisecond)/1000),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.pacer()
	return s
}

func (s *PacedSpeaker) pacer() {
	defer close(s.done)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *PacedSpeaker) tick() {
	if !s.Active() {
		return
	}
	s.Render(s.frame)
	_ = s.sink.WriteFrame(s.frame)
}

// Close stops the pacer and waits for it to exit.
func (s *PacedSpeaker) Close() error {
	s.once.Do(func() { close(s.stopCh) })
	<-s.done
	return nil
}

// PushMicrophone is a voice.Microphone fed by a transport. Samples pushed
// before Start or after Close are dropped.
type PushMicrophone struct {
	mu      sync.Mutex
	framer  *audio.Framer
	onFrame func([]float32)
	closed  bool
}

// Start implements voice.Microphone.
func (m *PushMicrophone) Start(frameSamples int, onFrame func(frame []float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("microphone closed")
	}
	m.framer = audio.NewFramer(frameSamples)
	m.onFrame = onFrame
	return nil
}

// Push appends capture samples and delivers every completed frame.
func (m *PushMicrophone) Push(samples []float32) {
	m.mu.Lock()
	if m.closed || m.framer == nil {
		m.mu.Unlock()
		return
	}
	frames := m.framer.Push(samples)
	fn := m.onFrame
	m.mu.Unlock()
	for _, f := range frames {
		fn(f)
	}
}

// Close implements voice.Microphone.
func (m *PushMicrophone) Close() error {
	m.mu.Lock()
	m.closed = true
	m.onFrame = nil
	m.framer = nil
	m.mu.Unlock()
	return nil
}

type sampleWriter interface {
	WriteSample(s media.Sample) error
}

type opusEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// OpusTrackWriter encodes 24kHz playback frames to 48kHz Opus and writes
// them to a WebRTC track.
type OpusTrackWriter struct {
	mu     sync.Mutex
	enc    opusEncoder
	track  sampleWriter
	up     []float32
	pcm    []int16
	packet []byte
}

// NewOpusTrackWriter builds a VoIP encoder for track.
func NewOpusTrackWriter(track sampleWriter) (*OpusTrackWriter, error) {
	enc, err := opus.NewEncoder(opusRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	return &OpusTrackWriter{enc: enc, track: track, packet: make([]byte, 4000)}, nil
}

// WriteFrame implements FrameSink. samples must be 20ms at 24kHz.
func (w *OpusTrackWriter) WriteFrame(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.up = Upsample2x(samples, w.up)
	if len(w.up) != opusFrameSamples {
		return errors.New("opus frame must be 20ms")
	}
	w.pcm = audio.SamplesToInt16(w.up, w.pcm)
	n, err := w.enc.Encode(w.pcm, w.packet)
	if err != nil {
		return err
	}
	pkt := make([]byte, n)
	copy(pkt, w.packet[:n])
	return w.track.WriteSample(media.Sample{Data: pkt, Duration: frameDuration})
}

// Upsample2x doubles the sample rate by linear interpolation, reusing dst.
func Upsample2x(in, dst []float32) []float32 {
	n := len(in) * 2
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i, v := range in {
		next := v
		if i+1 < len(in) {
			next = in[i+1]
		}
		dst[2*i] = v
		dst[2*i+1] = (v + next) / 2
	}
	return dst
}
