package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/ecocleans/booking-agent/internal/audio"
	"github.com/ecocleans/booking-agent/internal/booking"
	"github.com/ecocleans/booking-agent/internal/metrics"
	"github.com/ecocleans/booking-agent/internal/prompt"
)

const (
	unavailableText = "Live voice feature is currently unavailable. Please use the chat interface."
	connectionText  = "Connection error detected."
	microphoneText  = "Microphone access was denied or is unavailable."
	speakerText     = "Audio output is unavailable."

	toolOKText      = "Booking details updated successfully."
	unknownToolText = "Unknown tool"

	uplinkFrames = 32
)

// Controller owns one live voice session at a time.
type Controller struct {
	creds  CredentialSource
	dialer Dialer
	device Device
	sink   Sink
	cfg    LiveConfig
	log    *zap.Logger
	events Events

	mu       sync.Mutex
	state    State
	errMsg   string
	volume   float64
	sess     LiveSession
	mic      Microphone
	speaker  Speaker
	playback *audio.Playback
	meter    *audio.Meter
	uplink   chan []byte
	cancel   context.CancelFunc
}

// NewController builds a disconnected controller.
func NewController(creds CredentialSource, dialer Dialer, device Device, sink Sink, cfg LiveConfig, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		creds:  creds,
		dialer: dialer,
		device: device,
		sink:   sink,
		cfg:    cfg,
		log:    log.Named("voice"),
		state:  StateDisconnected,
	}
}

// SetEvents replaces the observers.
func (c *Controller) SetEvents(e Events) {
	c.mu.Lock()
	c.events = e
	c.mu.Unlock()
}

// Connect opens the microphone, speaker and live session. A missing
// credential is reported as ErrUnavailable before any device is touched.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.errMsg = ""
	c.mu.Unlock()
	c.emitState()

	cred, err := c.creds.Credential(ctx)
	if err != nil || cred == "" {
		if err != nil {
			c.log.Warn("live credential unavailable", zap.Error(err))
		}
		c.fail(unavailableText)
		return ErrUnavailable
	}

	speaker, err := c.device.OpenSpeaker(ctx, audio.PlaybackRate)
	if err != nil {
		c.log.Warn("open speaker failed", zap.Error(err))
		c.fail(speakerText)
		return fmt.Errorf("open speaker: %w", err)
	}
	mic, err := c.device.OpenMicrophone(ctx, Constraints{
		SampleRate:       audio.CaptureRate,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	})
	if err != nil {
		_ = speaker.Close()
		c.log.Warn("open microphone failed", zap.Error(err))
		c.fail(microphoneText)
		return fmt.Errorf("open microphone: %w", err)
	}
	sess, err := c.dialer.Dial(ctx, cred, c.cfg)
	if err != nil {
		_ = mic.Close()
		_ = speaker.Close()
		c.log.Error("live session open failed", zap.Error(err))
		c.fail(connectionText)
		return fmt.Errorf("dial live session: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	uplink := make(chan []byte, uplinkFrames)

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnected while dialing.
		c.mu.Unlock()
		cancel()
		_ = sess.Close()
		_ = mic.Close()
		_ = speaker.Close()
		return context.Canceled
	}
	c.sess, c.mic, c.speaker = sess, mic, speaker
	c.playback = audio.NewPlayback(speaker, audio.PlaybackRate)
	c.meter = audio.NewMeter()
	c.uplink = uplink
	c.cancel = cancel
	c.state = StateConnected
	pb := c.playback
	c.mu.Unlock()

	metrics.VoiceSessions.Inc()
	c.log.Info("voice session connected")
	c.emitState()

	go c.sendLoop(runCtx, sess, uplink)
	go c.receiveLoop(runCtx, sess, pb)

	if err := mic.Start(audio.FrameSamples, func(frame []float32) { c.capture(frame, uplink) }); err != nil {
		c.log.Warn("microphone start failed", zap.Error(err))
		c.fail(microphoneText)
		return fmt.Errorf("start microphone: %w", err)
	}
	return nil
}

// capture runs on the device callback and must never block.
func (c *Controller) capture(frame []float32, uplink chan []byte) {
	c.mu.Lock()
	meter := c.meter
	c.mu.Unlock()
	if meter != nil {
		if lvl, ok := meter.Observe(frame); ok {
			c.setVolume(lvl)
		}
	}

	pcm := audio.EncodePCM16(frame)
	select {
	case uplink <- pcm:
	default:
		metrics.DroppedFrames.Inc()
		c.log.Debug("uplink full, dropping capture frame")
	}
}

func (c *Controller) sendLoop(ctx context.Context, sess LiveSession, uplink <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case pcm := <-uplink:
			if err := sess.SendAudio(pcm); err != nil {
				c.log.Debug("audio upload failed", zap.Error(err))
			}
		}
	}
}

func (c *Controller) receiveLoop(ctx context.Context, sess LiveSession, pb *audio.Playback) {
	for {
		ev, err := sess.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				c.log.Info("live session closed by remote")
				c.teardown(StateDisconnected, "")
				return
			}
			c.log.Error("live session error", zap.Error(err))
			c.fail(connectionText)
			return
		}
		c.handle(ctx, sess, pb, ev)
	}
}

func (c *Controller) handle(ctx context.Context, sess LiveSession, pb *audio.Playback, ev Event) {
	if len(ev.ToolCalls) > 0 {
		results := make([]ToolResult, 0, len(ev.ToolCalls))
		for _, call := range ev.ToolCalls {
			results = append(results, c.dispatch(ctx, call))
		}
		if err := sess.SendToolResponses(results); err != nil {
			c.log.Warn("tool response failed", zap.Error(err))
		}
	}
	if ev.Interrupted {
		pb.Interrupt()
	}
	if len(ev.Audio) > 0 {
		if _, err := pb.EnqueuePCM(ev.Audio); err != nil {
			c.log.Debug("playback enqueue failed", zap.Error(err))
		}
	}

	c.mu.Lock()
	onTranscript := c.events.OnTranscript
	c.mu.Unlock()
	if onTranscript != nil {
		if ev.InputText != "" {
			onTranscript(string(RoleCaller), ev.InputText)
		}
		if ev.OutputText != "" {
			onTranscript(string(RoleAgent), ev.OutputText)
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, call ToolCall) ToolResult {
	metrics.ToolCalls.WithLabelValues(call.Name).Inc()
	if call.Name != prompt.ToolName {
		c.log.Warn("unknown tool call", zap.String("name", call.Name))
		return ToolResult{ID: call.ID, Name: call.Name, Response: map[string]any{"result": unknownToolText}}
	}
	if c.sink != nil {
		if _, err := c.sink.Apply(ctx, booking.DraftFromArgs(call.Args)); err != nil {
			c.log.Warn("booking update from tool call failed", zap.Error(err))
		}
	}
	return ToolResult{ID: call.ID, Name: call.Name, Response: map[string]any{"result": toolOKText}}
}

// Disconnect tears the session down. It is safe from any state and may be
// called repeatedly.
func (c *Controller) Disconnect() {
	c.teardown(StateDisconnected, "")
}

func (c *Controller) fail(msg string) {
	c.teardown(StateError, msg)
}

func (c *Controller) teardown(next State, msg string) {
	c.mu.Lock()
	if next == StateDisconnected && c.state == StateDisconnected && c.sess == nil {
		c.mu.Unlock()
		return
	}
	wasConnected := c.state == StateConnected
	sess, mic, speaker, pb, cancel := c.sess, c.mic, c.speaker, c.playback, c.cancel
	c.sess, c.mic, c.speaker, c.playback, c.cancel = nil, nil, nil, nil, nil
	c.meter, c.uplink = nil, nil
	c.state = next
	if msg != "" {
		c.errMsg = msg
	}
	c.volume = 0
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if mic != nil {
		_ = mic.Close()
	}
	if pb != nil {
		pb.Close()
	}
	if sess != nil {
		if err := sess.Close(); err != nil {
			c.log.Debug("close live session", zap.Error(err))
		}
	}
	if speaker != nil {
		_ = speaker.Close()
	}
	if wasConnected {
		metrics.VoiceSessions.Dec()
		c.log.Info("voice session closed", zap.String("state", string(next)))
	}
	c.emitState()
	c.emitVolume(0)
}

func (c *Controller) setVolume(v float64) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.volume = v
	c.mu.Unlock()
	c.emitVolume(v)
}

func (c *Controller) emitState() {
	c.mu.Lock()
	fn, st, msg := c.events.OnState, c.state, c.errMsg
	c.mu.Unlock()
	if fn != nil {
		fn(st, msg)
	}
}

func (c *Controller) emitVolume(v float64) {
	c.mu.Lock()
	fn := c.events.OnVolume
	c.mu.Unlock()
	if fn != nil {
		fn(v)
	}
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether a session is live.
func (c *Controller) Connected() bool { return c.State() == StateConnected }

// Error returns the last user-facing error message.
func (c *Controller) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Volume is the latest input level, zero when disconnected.
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}
