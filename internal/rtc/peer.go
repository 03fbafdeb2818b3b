package rtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hraban/opus"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/ecocleans/booking-agent/internal/audio"
)

// Peer carries voice audio over WebRTC: Opus from the browser microphone
// in, agent speech out.
type Peer struct {
	pc     *webrtc.PeerConnection
	writer *OpusTrackWriter
	log    *zap.Logger

	mu      sync.Mutex
	onAudio func([]float32)
	closed  bool
}

// NewPeer prepares a peer connection with default codecs and interceptors
// and an outbound Opus track.
func NewPeer(iceServersJSON string, log *zap.Logger) (*Peer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, ir); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(ir))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: parseICEServers(iceServersJSON)})
	if err != nil {
		return nil, err
	}
	outTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: opusRate, Channels: 1},
		"agent-audio", "agent",
	)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	if _, err := pc.AddTrack(outTrack); err != nil {
		_ = pc.Close()
		return nil, err
	}
	writer, err := NewOpusTrackWriter(outTrack)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("opus encoder: %w", err)
	}

	p := &Peer{pc: pc, writer: writer, log: log.Named("webrtc")}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.log.Debug("peer connection state", zap.String("state", state.String()))
	})
	pc.OnTrack(p.readTrack)
	return p, nil
}

// OnCandidate forwards local ICE candidates; nil marks the end of gathering.
func (p *Peer) OnCandidate(fn func(*webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		init := c.ToJSON()
		fn(&init)
	})
}

// OnAudio sets the receiver for decoded 16kHz microphone samples.
func (p *Peer) OnAudio(fn func([]float32)) {
	p.mu.Lock()
	p.onAudio = fn
	p.mu.Unlock()
}

// Answer applies the remote offer and returns the local answer SDP.
// Candidates trickle through OnCandidate.
func (p *Peer) Answer(offerSDP string) (string, error) {
	if offerSDP == "" {
		return "", errors.New("invalid offer")
	}
	if err := p.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		return "", err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	local := p.pc.LocalDescription()
	if local == nil {
		return "", errors.New("no local description")
	}
	return local.SDP, nil
}

// AddCandidate adds a remote trickle candidate.
func (p *Peer) AddCandidate(c webrtc.ICECandidateInit) error {
	if c.Candidate == "" {
		return nil
	}
	return p.pc.AddICECandidate(c)
}

// WriteFrame implements FrameSink.
func (p *Peer) WriteFrame(samples []float32) error {
	return p.writer.WriteFrame(samples)
}

func (p *Peer) readTrack(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	if remote.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	p.log.Info("remote audio track received", zap.String("codec", remote.Codec().MimeType))
	dec, err := opus.NewDecoder(audio.CaptureRate, 1)
	if err != nil {
		p.log.Error("opus decoder", zap.Error(err))
		return
	}
	// 120ms is the largest Opus packet
	pcm := make([]int16, audio.CaptureRate*120/1000)
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			p.log.Debug("rtp read ended", zap.Error(err))
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.Decode(pkt.Payload, pcm)
		if err != nil {
			p.log.Debug("opus decode", zap.Error(err))
			continue
		}
		p.mu.Lock()
		fn := p.onAudio
		p.mu.Unlock()
		if fn != nil {
			fn(audio.Int16ToSamples(pcm[:n]))
		}
	}
}

// Close tears down the peer connection.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.onAudio = nil
	p.mu.Unlock()
	return p.pc.Close()
}

func parseICEServers(iceJSON string) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if err := json.Unmarshal([]byte(iceJSON), &servers); err == nil && len(servers) > 0 {
		return servers
	}
	return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}
