// Package audio converts between captured samples and the 16-bit PCM wire
// format and schedules decoded model speech for gapless playback.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	// CaptureRate is the microphone sample rate sent upstream.
	CaptureRate = 16000
	// PlaybackRate is the sample rate of model speech.
	PlaybackRate = 24000
	// FrameSamples is the capture frame size.
	FrameSamples = 2048
)

// CaptureMIMEType labels uploaded capture frames.
const CaptureMIMEType = "audio/pcm;rate=16000"

// EncodePCM16 converts float samples in [-1, 1] to little-endian signed 16-bit PCM.
// Out-of-range samples are clamped.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

// DecodePCM16 converts little-endian signed 16-bit PCM to float samples.
// A trailing odd byte is ignored.
func DecodePCM16(b []byte) []float32 {
	n := len(b) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(b[2*i:]))) / 32768
	}
	return out
}

// SamplesToInt16 converts float samples to int16, clamping.
func SamplesToInt16(samples []float32, dst []int16) []int16 {
	if cap(dst) < len(samples) {
		dst = make([]int16, len(samples))
	}
	dst = dst[:len(samples)]
	for i, s := range samples {
		dst[i] = int16(math.Max(-32768, math.Min(32767, float64(s)*32767)))
	}
	return dst
}

// Int16ToSamples converts int16 PCM to float samples.
func Int16ToSamples(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, v := range pcm {
		out[i] = float32(v) / 32768
	}
	return out
}

// Duration returns how long n samples last at rate.
func Duration(n, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// Framer cuts a stream of samples into fixed-size frames.
type Framer struct {
	size int
	buf  []float32
}

// NewFramer returns a Framer emitting frames of size samples.
func NewFramer(size int) *Framer {
	if size <= 0 {
		size = FrameSamples
	}
	return &Framer{size: size, buf: make([]float32, 0, size*2)}
}

// Push appends samples and returns every complete frame now available.
func (f *Framer) Push(samples []float32) [][]float32 {
	f.buf = append(f.buf, samples...)
	var frames [][]float32
	for len(f.buf) >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.buf[:f.size])
		frames = append(frames, frame)
		f.buf = f.buf[:copy(f.buf, f.buf[f.size:])]
	}
	return frames
}

// Reset drops any partial frame.
func (f *Framer) Reset() { f.buf = f.buf[:0] }
