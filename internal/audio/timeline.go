package audio

import (
	"sync"
	"time"
)

// Timeline is a Player whose clock advances as output is rendered. A device
// pacer calls Render at real-time cadence; scheduled buffers are mixed into
// the rendered frames at their start offsets.
type Timeline struct {
	rate int

	mu     sync.Mutex
	pos    int64
	voices []*voice
}

type voice struct {
	tl      *Timeline
	start   int64
	samples []float32
	done    func()
}

// NewTimeline returns a Timeline clocked at rate samples per second.
func NewTimeline(rate int) *Timeline {
	if rate <= 0 {
		rate = PlaybackRate
	}
	return &Timeline{rate: rate}
}

// Rate is the sample rate Render produces.
func (t *Timeline) Rate() int { return t.rate }

// CurrentTime implements Player.
func (t *Timeline) CurrentTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Duration(int(t.pos), t.rate)
}

// Start implements Player. done is only ever invoked from Render.
func (t *Timeline) Start(samples []float32, at time.Duration, done func()) (Stopper, error) {
	v := &voice{tl: t, start: t.offset(at), samples: samples, done: done}
	t.mu.Lock()
	t.voices = append(t.voices, v)
	t.mu.Unlock()
	return v, nil
}

func (t *Timeline) offset(at time.Duration) int64 {
	return (int64(at)*int64(t.rate) + int64(time.Second)/2) / int64(time.Second)
}

// Stop removes the voice without calling its done callback.
func (v *voice) Stop() {
	t := v.tl
	t.mu.Lock()
	for i, o := range t.voices {
		if o == v {
			t.voices = append(t.voices[:i], t.voices[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
}

// Render fills out with the next len(out) samples and advances the clock.
func (t *Timeline) Render(out []float32) {
	for i := range out {
		out[i] = 0
	}
	var finished []func()

	t.mu.Lock()
	from, to := t.pos, t.pos+int64(len(out))
	kept := t.voices[:0]
	for _, v := range t.voices {
		end := v.start + int64(len(v.samples))
		lo, hi := max(from, v.start), min(to, end)
		for p := lo; p < hi; p++ {
			out[p-from] += v.samples[p-v.start]
		}
		if end <= to {
			if v.done != nil {
				finished = append(finished, v.done)
			}
			continue
		}
		kept = append(kept, v)
	}
	for i := len(kept); i < len(t.voices); i++ {
		t.voices[i] = nil
	}
	t.voices = kept
	t.pos = to
	t.mu.Unlock()

	for i := range out {
		if out[i] > 1 {
			out[i] = 1
		} else if out[i] < -1 {
			out[i] = -1
		}
	}
	for _, fn := range finished {
		fn()
	}
}

// Active reports whether any buffer is scheduled.
func (t *Timeline) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.voices) > 0
}
