package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/ecocleans/booking-agent/internal/agent"
	"github.com/ecocleans/booking-agent/internal/chat"
	"github.com/ecocleans/booking-agent/internal/voice"
)

// Message is a dialog websocket control frame in either direction.
type Message struct {
	Type string `json:"type"`
	// mode
	Mode string `json:"mode,omitempty"`
	// message, transcript
	Text string `json:"text,omitempty"`
	Role string `json:"role,omitempty"`
	// offer/answer
	SDP string `json:"sdp,omitempty"`
	// candidate
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
	// error
	Error string `json:"error,omitempty"`
}

type stateMessage struct {
	Type string `json:"type"`
	agent.Snapshot
}

// DialogFactory builds the dialog for one connection around its audio device.
type DialogFactory func(dev *Device) *agent.Dialog

// Session serves one dialog over a websocket.
type Session struct {
	conn    *conn
	device  *Device
	dialog  *agent.Dialog
	iceJSON string
	log     *zap.Logger

	wg sync.WaitGroup
}

// Serve runs the dialog protocol on ws until the socket closes.
func Serve(ctx context.Context, ws *websocket.Conn, newDialog DialogFactory, iceServersJSON string, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &conn{ws: ws}
	dev := NewDevice(c.writeBinary)
	s := &Session{
		conn:    c,
		device:  dev,
		dialog:  newDialog(dev),
		iceJSON: iceServersJSON,
		log:     log.Named("dialog_ws"),
	}
	s.run(ctx)
}

func (s *Session) run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer func() {
		cancel()
		s.dialog.Shutdown()
		s.wg.Wait()
		_ = s.device.Close()
		_ = s.conn.ws.Close()
	}()

	s.dialog.OnUpdate(func(snap agent.Snapshot) {
		if err := s.conn.writeJSON(stateMessage{Type: "state", Snapshot: snap}); err != nil {
			s.log.Debug("state write failed", zap.Error(err))
		}
	})
	s.dialog.OnTranscript(func(role, text string) {
		_ = s.conn.writeJSON(Message{Type: "transcript", Role: role, Text: text})
	})
	_ = s.conn.writeJSON(stateMessage{Type: "state", Snapshot: s.dialog.Snapshot()})

	ws := s.conn.ws
	ws.SetReadLimit(maxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { return ws.SetReadDeadline(time.Now().Add(pongWait)) })
	go s.keepalive(ctx)

	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			s.device.PushPCM(data)
		case websocket.TextMessage:
			var m Message
			if err := json.Unmarshal(data, &m); err != nil {
				s.sendError(errors.New("invalid message"))
				continue
			}
			s.handle(ctx, m)
		}
	}
}

func (s *Session) keepalive(ctx context.Context) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			// Unblocks the read loop when the server shuts down.
			_ = s.conn.ws.Close()
			return
		case <-t.C:
			if err := s.conn.ping(); err != nil {
				return
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, m Message) {
	switch strings.ToLower(m.Type) {
	case "open":
		s.dialog.Open()
	case "close":
		s.dialog.Close()
	case "mode":
		if err := s.dialog.SetMode(agent.Mode(m.Mode)); err != nil {
			s.sendError(err)
		}
	case "reset":
		s.dialog.Reset()
	case "call":
		s.async(func() {
			err := s.dialog.ToggleCall(ctx)
			// Voice failures are already in the snapshot.
			if errors.Is(err, agent.ErrClosed) || errors.Is(err, agent.ErrWrongMode) {
				s.sendError(err)
			}
		})
	case "message":
		s.async(func() {
			err := s.dialog.Send(ctx, m.Text)
			switch {
			case err == nil, errors.Is(err, chat.ErrEmptyMessage):
			case errors.Is(err, agent.ErrClosed), errors.Is(err, agent.ErrWrongMode), errors.Is(err, chat.ErrBusy):
				s.sendError(err)
			default:
				s.log.Debug("chat turn failed", zap.Error(err))
			}
		})
	case "offer":
		s.negotiate(m.SDP)
	case "candidate":
		s.addCandidate(m)
	default:
		s.sendError(errors.New("unknown message type"))
	}
}

func (s *Session) async(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Session) negotiate(sdp string) {
	peer, err := NewPeer(s.iceJSON, s.log)
	if err != nil {
		s.log.Error("create peer failed", zap.Error(err))
		s.sendError(err)
		return
	}
	peer.OnCandidate(func(c *webrtc.ICECandidateInit) {
		if c == nil {
			_ = s.conn.writeJSON(Message{Type: "ice-complete"})
			return
		}
		_ = s.conn.writeJSON(Message{Type: "candidate", Candidate: c.Candidate, SDPMid: c.SDPMid, SDPMLineIndex: c.SDPMLineIndex})
	})
	answer, err := peer.Answer(sdp)
	if err != nil {
		_ = peer.Close()
		s.sendError(err)
		return
	}
	s.device.AttachPeer(peer)
	_ = s.conn.writeJSON(Message{Type: "answer", SDP: answer})
}

func (s *Session) addCandidate(m Message) {
	s.device.mu.Lock()
	peer := s.device.peer
	s.device.mu.Unlock()
	if peer == nil {
		s.sendError(errors.New("candidate before offer"))
		return
	}
	if err := peer.AddCandidate(webrtc.ICECandidateInit{Candidate: m.Candidate, SDPMid: m.SDPMid, SDPMLineIndex: m.SDPMLineIndex}); err != nil {
		s.log.Debug("add candidate failed", zap.Error(err))
	}
}

func (s *Session) sendError(err error) {
	msg := err.Error()
	switch {
	case errors.Is(err, voice.ErrUnavailable):
		msg = "voice unavailable"
	case errors.Is(err, chat.ErrBusy):
		msg = "a message is already being answered"
	}
	_ = s.conn.writeJSON(Message{Type: "error", Error: msg})
}
