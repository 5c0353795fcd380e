// Package gateway defines the boundary to the remote generative-AI service.
// The session core depends on this interface only; the gemini subpackage
// implements it.
package gateway

import (
	"context"

	"github.com/gemikid/tutor/pkg/core/types"
)

// Mode selects the model path for a reply.
type Mode string

const (
	ModeFast   Mode = "fast"
	ModeFull   Mode = "full"
	ModeSearch Mode = "search"
)

// Attachment is inline media sent alongside a prompt.
type Attachment struct {
	MIMEType string
	Data     []byte
}

// ReplyRequest describes one streamed text exchange.
type ReplyRequest struct {
	Prompt  string
	History []types.Message // bounded context window, oldest first

	Mode        Mode
	Reasoning   bool
	Explanation bool

	Image *Attachment
	Video *Attachment
}

// ReplyChunk is one increment of a streamed reply.
type ReplyChunk struct {
	Text    string
	Sources []types.GroundingSource
}

// ReplyStream is an ordered, finite stream of reply chunks. The channel is
// closed when the model ends its turn; Err reports a terminal failure.
// Dropping the consumer and calling Close cancels the stream.
type ReplyStream interface {
	Chunks() <-chan ReplyChunk
	Err() error
	Close() error
}

// LiveEvent is an event delivered by a live session. Interruption and close
// are distinguishable messages on the same channel rather than separate
// callbacks.
type LiveEvent interface {
	liveEventType() string
}

// AudioChunkEvent carries one chunk of synthesized 24kHz mono s16le PCM.
type AudioChunkEvent struct {
	PCM []byte
}

func (AudioChunkEvent) liveEventType() string { return "audio_chunk" }

// InterruptedEvent signals that the server detected the user speaking over
// the assistant; buffered playback should stop immediately.
type InterruptedEvent struct{}

func (InterruptedEvent) liveEventType() string { return "interrupted" }

// TurnCompleteEvent marks the end of one assistant audio turn.
type TurnCompleteEvent struct{}

func (TurnCompleteEvent) liveEventType() string { return "turn_complete" }

// ClosedEvent is the final event on the channel; Err is nil on a clean
// shutdown.
type ClosedEvent struct {
	Err error
}

func (ClosedEvent) liveEventType() string { return "closed" }

// LiveSession is one open bidirectional audio connection. At most one is
// open at a time; Close is idempotent and releases all session resources.
type LiveSession interface {
	Events() <-chan LiveEvent
	SendAudio(pcm []byte) error
	Close() error
}

// Gateway wraps every call the session core makes to the remote service.
type Gateway interface {
	// StreamReply opens a streaming text channel for one turn.
	StreamReply(ctx context.Context, req ReplyRequest) (ReplyStream, error)

	// SynthesizeSpeech converts text to 24kHz mono s16le PCM. A nil slice
	// without an error signals a best-effort failure.
	SynthesizeSpeech(ctx context.Context, text, voiceID string) ([]byte, error)

	// Transcribe converts recorded audio to text.
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)

	// GenerateImage produces image bytes for the prompt.
	GenerateImage(ctx context.Context, prompt, aspectRatio string) ([]byte, error)

	// GenerateVideo produces a playable video reference. Long-running; the
	// implementation polls until the operation settles.
	GenerateVideo(ctx context.Context, prompt, aspectRatio string) (string, error)

	// OpenLiveSession opens a bidirectional audio session with the given
	// voice identity.
	OpenLiveSession(ctx context.Context, voiceID string) (LiveSession, error)

	// FetchWordList fetches spelling words for a class level. May return an
	// empty list on a degraded result.
	FetchWordList(ctx context.Context, classLevel string) ([]types.SpellingWord, error)
}
