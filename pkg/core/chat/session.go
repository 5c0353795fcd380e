package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gemikid/tutor/pkg/core"
	"github.com/gemikid/tutor/pkg/core/state"
	"github.com/gemikid/tutor/pkg/core/types"
	"github.com/gemikid/tutor/pkg/gateway"
)

// historyWindow bounds the context sent with each turn. The window never
// includes the user message that opens the current turn.
const historyWindow = 10

// Phase is the lifecycle stage of the turn in flight.
type Phase string

const (
	TurnIdle          Phase = "idle"
	TurnAwaitingMedia Phase = "awaiting_media"
	TurnStreaming     Phase = "streaming"
	TurnDone          Phase = "done"
	TurnFailed        Phase = "failed"
)

// Replier is the slice of the gateway a chat session uses.
type Replier interface {
	StreamReply(ctx context.Context, req gateway.ReplyRequest) (gateway.ReplyStream, error)
	GenerateImage(ctx context.Context, prompt, aspectRatio string) ([]byte, error)
	GenerateVideo(ctx context.Context, prompt, aspectRatio string) (string, error)
}

// Player speaks completed replies aloud. Implementations decide whether
// audio is currently enabled.
type Player interface {
	Play(ctx context.Context, text string)
}

// Session owns the ordered message history and runs one turn at a time
// against the gateway. History subscribers receive a snapshot after every
// visible change, including each streamed chunk.
type Session struct {
	gw     Replier
	store  *state.Store
	player Player
	logger *slog.Logger

	mu       sync.Mutex
	messages []types.Message
	phase    Phase
	busy     bool
	subs     map[int]func([]types.Message)
	nextSub  int
}

// NewSession creates a session with an empty history.
func NewSession(gw Replier, store *state.Store, player Player, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		gw:     gw,
		store:  store,
		player: player,
		logger: logger,
		phase:  TurnIdle,
		subs:   make(map[int]func([]types.Message)),
	}
}

// Messages returns a copy of the full history, oldest first.
func (s *Session) Messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Message(nil), s.messages...)
}

// Phase reports the lifecycle stage of the current or last turn.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Subscribe registers an observer of history changes. The returned func
// removes the subscription.
func (s *Session) Subscribe(fn func([]types.Message)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Clear drops the whole history. It fails while a turn is in flight.
func (s *Session) Clear() error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return core.NewSessionError("cannot clear history while a turn is in flight")
	}
	s.messages = nil
	s.phase = TurnIdle
	s.mu.Unlock()
	s.publish()
	return nil
}

// TurnInput is one turn's user input: text plus optional inline media.
type TurnInput struct {
	Text  string
	Image *gateway.Attachment
	Video *gateway.Attachment
}

// SubmitTurn runs one text-only turn.
func (s *Session) SubmitTurn(ctx context.Context, text string) error {
	return s.Submit(ctx, TurnInput{Text: text})
}

// Submit runs one full turn: append the user message, generate any
// requested media, stream the reply into a new assistant message, and speak
// the finished text. Exactly one turn runs at a time.
func (s *Session) Submit(ctx context.Context, input TurnInput) error {
	trimmed := strings.TrimSpace(input.Text)
	if trimmed == "" && input.Image == nil && input.Video == nil {
		return core.NewValidationError("message needs text or an attachment")
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return core.NewSessionError("a turn is already in flight")
	}
	s.busy = true
	s.phase = TurnIdle
	// The context window is the history as it stood before this turn.
	window := lastN(s.messages, historyWindow)
	userMsg := types.NewUserMessage(trimmed)
	if input.Image != nil {
		userMsg.ImageData = input.Image.Data
	}
	s.messages = append(s.messages, userMsg)
	s.mu.Unlock()

	s.store.Update(func(st *state.State) {
		st.Processing = true
		st.LastError = ""
	})
	s.publish()

	err := s.runTurn(ctx, trimmed, input, window)

	s.mu.Lock()
	if err != nil {
		s.phase = TurnFailed
	} else {
		s.phase = TurnDone
	}
	s.busy = false
	s.mu.Unlock()

	s.store.Update(func(st *state.State) {
		st.Processing = false
		st.GeneratingImage = false
		st.GeneratingVideo = false
	})
	if err != nil {
		s.store.SetError(err)
	}
	return err
}

func (s *Session) runTurn(ctx context.Context, prompt string, input TurnInput, window []types.Message) error {
	snap := s.store.Snapshot()

	// Media generation runs before the text stream; a successful result
	// lands in its own message. A media failure is surfaced as the session
	// error but never aborts the reply.
	switch Classify(prompt) {
	case IntentImage:
		s.setPhase(TurnAwaitingMedia)
		s.store.Update(func(st *state.State) { st.GeneratingImage = true })
		data, err := s.gw.GenerateImage(ctx, prompt, snap.ImageAspectRatio)
		if err != nil {
			s.logger.Warn("image generation failed", "error", err)
			s.store.SetError(core.WrapGenerationError("image generation", err))
		} else {
			media := types.NewAssistantMessage("")
			media.ImageData = data
			s.appendMessage(media)
		}
		s.store.Update(func(st *state.State) { st.GeneratingImage = false })
	case IntentVideo:
		s.setPhase(TurnAwaitingMedia)
		s.store.Update(func(st *state.State) { st.GeneratingVideo = true })
		uri, err := s.gw.GenerateVideo(ctx, prompt, snap.ImageAspectRatio)
		if err != nil {
			s.logger.Warn("video generation failed", "error", err)
			s.store.SetError(core.WrapGenerationError("video generation", err))
		} else {
			media := types.NewAssistantMessage("")
			media.VideoURI = uri
			s.appendMessage(media)
		}
		s.store.Update(func(st *state.State) { st.GeneratingVideo = false })
	}

	reply := types.NewAssistantMessage("")
	reply.Fast = snap.ResponseMode == state.ModeFast
	s.setPhase(TurnStreaming)
	s.appendMessage(reply)

	stream, err := s.gw.StreamReply(ctx, gateway.ReplyRequest{
		Prompt:      s.framedPrompt(prompt, snap.ClassLevel),
		History:     window,
		Mode:        gateway.Mode(snap.ResponseMode),
		Reasoning:   snap.ReasoningMode,
		Explanation: snap.ExplanationMode,
		Image:       input.Image,
		Video:       input.Video,
	})
	if err != nil {
		return core.WrapGenerationError("open reply stream", err)
	}
	defer stream.Close()

	var full strings.Builder
	for chunk := range stream.Chunks() {
		full.WriteString(chunk.Text)
		s.extendReply(chunk)
	}
	if err := stream.Err(); err != nil {
		return core.WrapGenerationError("reply stream", err)
	}

	if full.Len() > 0 && s.player != nil {
		s.player.Play(ctx, full.String())
	}
	return nil
}

// framedPrompt prefixes the class level so the model pitches its answer to
// the student's grade.
func (s *Session) framedPrompt(prompt, classLevel string) string {
	if classLevel == "" {
		return prompt
	}
	return fmt.Sprintf("[Class: %s] %s", classLevel, prompt)
}

// extendReply appends a chunk to the last message and publishes the change.
// Grounding sources are deduplicated by URI.
func (s *Session) extendReply(chunk gateway.ReplyChunk) {
	s.mu.Lock()
	last := &s.messages[len(s.messages)-1]
	last.Text += chunk.Text
	for _, src := range chunk.Sources {
		if !hasSource(last.Sources, src.URI) {
			last.Sources = append(last.Sources, src)
		}
	}
	s.mu.Unlock()
	s.publish()
}

func (s *Session) appendMessage(msg types.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	s.publish()
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *Session) publish() {
	s.mu.Lock()
	snap := append([]types.Message(nil), s.messages...)
	subs := make([]func([]types.Message), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

func hasSource(sources []types.GroundingSource, uri string) bool {
	for _, src := range sources {
		if src.URI == uri {
			return true
		}
	}
	return false
}

func lastN(msgs []types.Message, n int) []types.Message {
	if len(msgs) <= n {
		return append([]types.Message(nil), msgs...)
	}
	return append([]types.Message(nil), msgs[len(msgs)-n:]...)
}
