package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/ecocleans/booking-agent/internal/audio"
	"github.com/ecocleans/booking-agent/internal/chat"
	"github.com/ecocleans/booking-agent/internal/prompt"
	"github.com/ecocleans/booking-agent/internal/voice"
)

// GeminiText answers chat turns with a single GenerateContent call.
type GeminiText struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	// BaseURL overrides the API endpoint; empty uses the SDK default.
	BaseURL string

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiText returns a text model client. Calls fail until an API key is set.
func NewGeminiText(apiKey, model string) *GeminiText {
	return &GeminiText{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		Model:      model,
	}
}

func (g *GeminiText) sdk(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	if g.APIKey == "" {
		return nil, fmt.Errorf("gemini api key missing")
	}
	c, err := newClient(ctx, g.APIKey, g.HTTPClient, g.BaseURL)
	if err != nil {
		return nil, err
	}
	g.client = c
	return c, nil
}

// Reply implements chat.Model.
func (g *GeminiText) Reply(ctx context.Context, req chat.Request) (string, error) {
	client, err := g.sdk(ctx)
	if err != nil {
		return "", err
	}

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, t := range req.History {
		role := genai.RoleUser
		if t.Role == chat.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, genai.Role(role)))
	}
	contents = append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))

	var cfg *genai.GenerateContentConfig
	if req.SystemInstruction != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(req.SystemInstruction)}},
		}
	}

	resp, err := client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		if isRateLimited(err) {
			return "", fmt.Errorf("%w: %v", chat.ErrRateLimited, err)
		}
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return text, nil
}

func isRateLimited(err error) bool {
	var v genai.APIError
	if errors.As(err, &v) {
		return v.Code == http.StatusTooManyRequests
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return p.Code == http.StatusTooManyRequests
	}
	return false
}

func newClient(ctx context.Context, apiKey string, hc *http.Client, baseURL string) (*genai.Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return c, nil
}

// GeminiLive opens native-audio Live sessions.
type GeminiLive struct {
	Model   string
	BaseURL string
}

// Dial implements voice.Dialer. credential is the API key for this session.
func (g *GeminiLive) Dial(ctx context.Context, credential string, cfg voice.LiveConfig) (voice.LiveSession, error) {
	client, err := newClient(ctx, credential, nil, g.BaseURL)
	if err != nil {
		return nil, err
	}
	session, err := client.Live.Connect(ctx, g.Model, LiveConnectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("gemini live connect: %w", err)
	}
	return &liveSession{s: session}, nil
}

// LiveConnectConfig maps the session settings onto the SDK configuration.
func LiveConnectConfig(cfg voice.LiveConfig) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		Tools:              []*genai.Tool{prompt.BookingTool()},
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.SystemInstruction != "" {
		lc.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(cfg.SystemInstruction)}}
	}
	if cfg.Transcribe {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

type liveSession struct {
	s *genai.Session
}

func (l *liveSession) SendAudio(pcm []byte) error {
	return l.s.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{MIMEType: audio.CaptureMIMEType, Data: pcm},
	})
}

func (l *liveSession) SendToolResponses(results []voice.ToolResult) error {
	resp := make([]*genai.FunctionResponse, 0, len(results))
	for _, r := range results {
		resp = append(resp, &genai.FunctionResponse{ID: r.ID, Name: r.Name, Response: r.Response})
	}
	return l.s.SendToolResponse(genai.LiveToolResponseInput{FunctionResponses: resp})
}

func (l *liveSession) Receive() (voice.Event, error) {
	msg, err := l.s.Receive()
	if err != nil {
		return voice.Event{}, receiveErr(err)
	}
	return EventFromMessage(msg), nil
}

func (l *liveSession) Close() error { return l.s.Close() }

func receiveErr(err error) error {
	if errors.Is(err, io.EOF) || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	return err
}

// EventFromMessage flattens one server message.
func EventFromMessage(msg *genai.LiveServerMessage) voice.Event {
	var ev voice.Event
	if msg == nil {
		return ev
	}
	if sc := msg.ServerContent; sc != nil {
		ev.Interrupted = sc.Interrupted
		ev.TurnComplete = sc.TurnComplete
		if sc.ModelTurn != nil {
			for _, p := range sc.ModelTurn.Parts {
				if p != nil && p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
					ev.Audio = append(ev.Audio, p.InlineData.Data...)
				}
			}
		}
		if sc.InputTranscription != nil {
			ev.InputText = sc.InputTranscription.Text
		}
		if sc.OutputTranscription != nil {
			ev.OutputText = sc.OutputTranscription.Text
		}
	}
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			if fc == nil {
				continue
			}
			ev.ToolCalls = append(ev.ToolCalls, voice.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}
	return ev
}
