package audio

import (
	"math"
	"sync"
	"time"
)

const (
	meterInterval = 100 * time.Millisecond
	meterStride   = 10
)

// Meter computes a throttled input level from capture frames.
type Meter struct {
	mu       sync.Mutex
	interval time.Duration
	stride   int
	last     time.Time
	now      func() time.Time
}

// NewMeter returns a Meter reporting at most ten times per second.
func NewMeter() *Meter {
	return &Meter{interval: meterInterval, stride: meterStride, now: time.Now}
}

// Observe returns the RMS level of frame sampled every stride samples.
// ok is false when the previous report was less than one interval ago.
func (m *Meter) Observe(frame []float32) (level float64, ok bool) {
	m.mu.Lock()
	now := m.now()
	if !m.last.IsZero() && now.Sub(m.last) < m.interval {
		m.mu.Unlock()
		return 0, false
	}
	m.last = now
	m.mu.Unlock()
	return RMS(frame, m.stride), true
}

// Reset clears the throttle so the next frame is reported.
func (m *Meter) Reset() {
	m.mu.Lock()
	m.last = time.Time{}
	m.mu.Unlock()
}

// RMS is the root mean square over every stride-th sample.
func RMS(frame []float32, stride int) float64 {
	if stride <= 0 {
		stride = 1
	}
	var sum float64
	var n int
	for i := 0; i < len(frame); i += stride {
		v := float64(frame[i])
		sum += v * v
		n++
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(n))
}
