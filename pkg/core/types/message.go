// Package types defines the shared data model for the tutoring session core.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// GroundingSource is a citation attached to a reply that was backed by a
// search step.
type GroundingSource struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Message is one chat turn. Messages are owned by the ordered history:
// appended, never removed. Only the text of the most recent assistant
// message mutates, and only while its reply stream is open.
type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp"`
	ImageData []byte            `json:"image_data,omitempty"`
	ImageURL  string            `json:"image_url,omitempty"`
	VideoURI  string            `json:"video_uri,omitempty"`
	Sources   []GroundingSource `json:"sources,omitempty"`

	// Fast marks replies produced by the fast model path.
	Fast bool `json:"fast,omitempty"`
}

// NewUserMessage creates a user message with a fresh ID.
func NewUserMessage(text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Text:      text,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant message with a fresh ID.
func NewAssistantMessage(text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Text:      text,
		Timestamp: time.Now(),
	}
}
