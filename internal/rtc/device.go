package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ecocleans/booking-agent/internal/audio"
	"github.com/ecocleans/booking-agent/internal/voice"
)

var errNoAudioPath = errors.New("rtc: no audio path")

// Device is the voice.Device of one dialog connection. Audio travels as raw
// PCM over the dialog websocket until a WebRTC peer is attached, then over
// the peer.
type Device struct {
	pcmOut func(pcm []byte) error

	mu   sync.Mutex
	peer *Peer
	mic  *PushMicrophone
}

// NewDevice sends playback PCM frames through pcmOut.
func NewDevice(pcmOut func(pcm []byte) error) *Device {
	return &Device{pcmOut: pcmOut}
}

// OpenMicrophone implements voice.Device. The browser applies echo
// cancellation, noise suppression and gain control; only the rate is ours.
func (d *Device) OpenMicrophone(_ context.Context, c voice.Constraints) (voice.Microphone, error) {
	if c.SampleRate != audio.CaptureRate {
		return nil, fmt.Errorf("unsupported capture rate %d", c.SampleRate)
	}
	m := &PushMicrophone{}
	d.mu.Lock()
	d.mic = m
	d.mu.Unlock()
	return m, nil
}

// OpenSpeaker implements voice.Device.
func (d *Device) OpenSpeaker(_ context.Context, rate int) (voice.Speaker, error) {
	if rate != audio.PlaybackRate {
		return nil, fmt.Errorf("unsupported playback rate %d", rate)
	}
	return NewPacedSpeaker(rate, d), nil
}

// WriteFrame implements FrameSink, routing to the peer when one is attached.
func (d *Device) WriteFrame(samples []float32) error {
	d.mu.Lock()
	peer := d.peer
	d.mu.Unlock()
	if peer != nil {
		return peer.WriteFrame(samples)
	}
	if d.pcmOut == nil {
		return errNoAudioPath
	}
	return d.pcmOut(audio.EncodePCM16(samples))
}

// PushPCM feeds 16kHz PCM16 received on the websocket. It is ignored while
// a peer carries the microphone.
func (d *Device) PushPCM(pcm []byte) {
	d.mu.Lock()
	mic, peer := d.mic, d.peer
	d.mu.Unlock()
	if mic == nil || peer != nil {
		return
	}
	mic.Push(audio.DecodePCM16(pcm))
}

// AttachPeer switches audio to p, closing any previous peer.
func (d *Device) AttachPeer(p *Peer) {
	d.mu.Lock()
	old := d.peer
	d.peer = p
	d.mu.Unlock()
	if old != nil && old != p {
		_ = old.Close()
	}
	p.OnAudio(func(samples []float32) {
		d.mu.Lock()
		mic := d.mic
		d.mu.Unlock()
		if mic != nil {
			mic.Push(samples)
		}
	})
}

// Close releases the peer.
func (d *Device) Close() error {
	d.mu.Lock()
	p := d.peer
	d.peer = nil
	d.mu.Unlock()
	if p != nil {
		return p.Close()
	}
	return nil
}
