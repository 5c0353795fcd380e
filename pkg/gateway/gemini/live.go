package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gemikid/tutor/pkg/gateway"
)

const (
	liveConnectTimeout = 15 * time.Second
	micMIMEType        = "audio/pcm;rate=16000"
)

// Live wire frames. The protocol is JSON over a websocket: one setup
// exchange, then realtime input up and server content down.

type liveSetup struct {
	Setup liveSetupBody `json:"setup"`
}

type liveSetupBody struct {
	Model             string               `json:"model"`
	GenerationConfig  liveGenerationConfig `json:"generationConfig"`
	SystemInstruction *liveContent         `json:"systemInstruction,omitempty"`
}

type liveGenerationConfig struct {
	ResponseModalities []string          `json:"responseModalities"`
	SpeechConfig       *liveSpeechConfig `json:"speechConfig,omitempty"`
}

type liveSpeechConfig struct {
	VoiceConfig liveVoiceConfig `json:"voiceConfig"`
}

type liveVoiceConfig struct {
	PrebuiltVoiceConfig livePrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type livePrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type liveContent struct {
	Parts []livePart `json:"parts"`
}

type livePart struct {
	Text       string          `json:"text,omitempty"`
	InlineData *liveInlineData `json:"inlineData,omitempty"`
}

type liveInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type liveRealtimeInput struct {
	RealtimeInput liveMediaChunks `json:"realtimeInput"`
}

type liveMediaChunks struct {
	MediaChunks []liveInlineData `json:"mediaChunks"`
}

type liveServerMessage struct {
	SetupComplete *struct{}          `json:"setupComplete,omitempty"`
	ServerContent *liveServerContent `json:"serverContent,omitempty"`
}

type liveServerContent struct {
	ModelTurn    *liveContent `json:"modelTurn,omitempty"`
	Interrupted  bool         `json:"interrupted,omitempty"`
	TurnComplete bool         `json:"turnComplete,omitempty"`
}

// OpenLiveSession dials the live endpoint, completes the setup handshake,
// and returns a session pumping decoded events.
func (p *Provider) OpenLiveSession(ctx context.Context, voiceID string) (gateway.LiveSession, error) {
	url := p.liveEndpoint
	if p.apiKey != "" {
		url += "?key=" + p.apiKey
	}

	dialer := p.dialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, liveConnectTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial live endpoint (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial live endpoint: %w", err)
	}

	setup := liveSetup{
		Setup: liveSetupBody{
			Model: "models/" + modelLive,
			GenerationConfig: liveGenerationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: &liveSpeechConfig{
					VoiceConfig: liveVoiceConfig{
						PrebuiltVoiceConfig: livePrebuiltVoice{VoiceName: voiceID},
					},
				},
			},
			SystemInstruction: &liveContent{Parts: []livePart{{Text: systemPrompt}}},
		},
	}
	if err := conn.WriteJSON(setup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send live setup: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(liveConnectTimeout))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read setup reply: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var first liveServerMessage
	if err := json.Unmarshal(payload, &first); err != nil {
		conn.Close()
		return nil, fmt.Errorf("decode setup reply: %w", err)
	}
	if first.SetupComplete == nil {
		conn.Close()
		return nil, fmt.Errorf("live setup rejected: %s", strings.TrimSpace(string(payload)))
	}

	session := &liveSession{
		conn:   conn,
		events: make(chan gateway.LiveEvent, 256),
		done:   make(chan struct{}),
	}
	go session.readLoop()
	return session, nil
}

type liveSession struct {
	conn *websocket.Conn

	events chan gateway.LiveEvent
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

func (s *liveSession) Events() <-chan gateway.LiveEvent {
	return s.events
}

// SendAudio forwards one 16kHz mono s16le microphone frame.
func (s *liveSession) SendAudio(pcm []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("live session is closed")
	}
	frame := liveRealtimeInput{
		RealtimeInput: liveMediaChunks{
			MediaChunks: []liveInlineData{{
				MIMEType: micMIMEType,
				Data:     base64.StdEncoding.EncodeToString(pcm),
			}},
		},
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(frame)
}

// Close shuts the connection down and waits for the read loop to drain.
func (s *liveSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		s.conn.Close()
	})
	<-s.done
	return nil
}

// readLoop decodes server frames into events. The final event is always a
// ClosedEvent; a locally closed session reports a clean shutdown.
func (s *liveSession) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(gateway.ClosedEvent{})
			} else {
				s.emit(gateway.ClosedEvent{Err: err})
			}
			return
		}

		var msg liveServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.emit(gateway.ClosedEvent{Err: fmt.Errorf("decode live frame: %w", err)})
			return
		}
		content := msg.ServerContent
		if content == nil {
			continue
		}

		if content.Interrupted {
			s.emit(gateway.InterruptedEvent{})
		}
		if content.ModelTurn != nil {
			for _, part := range content.ModelTurn.Parts {
				if part.InlineData == nil || part.InlineData.Data == "" {
					continue
				}
				pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					s.emit(gateway.ClosedEvent{Err: fmt.Errorf("decode live audio: %w", err)})
					return
				}
				s.emit(gateway.AudioChunkEvent{PCM: pcm})
			}
		}
		if content.TurnComplete {
			s.emit(gateway.TurnCompleteEvent{})
		}
	}
}

// emit never blocks the read loop; a consumer that stops draining loses
// events rather than stalling the connection.
func (s *liveSession) emit(ev gateway.LiveEvent) {
	select {
	case s.events <- ev:
	default:
	}
}
