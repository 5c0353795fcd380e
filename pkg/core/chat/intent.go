// Package chat drives the tutoring conversation: history, turn
// submission, media generation, and streamed replies.
package chat

import "strings"

// Intent is what a prompt asks the session to produce.
type Intent int

const (
	// IntentPlain is an ordinary text turn.
	IntentPlain Intent = iota
	// IntentImage asks for a generated picture.
	IntentImage
	// IntentVideo asks for a generated video clip.
	IntentVideo
)

// String returns the intent name.
func (i Intent) String() string {
	switch i {
	case IntentImage:
		return "image"
	case IntentVideo:
		return "video"
	default:
		return "plain"
	}
}

// Video phrases are checked before image phrases so a prompt matching both
// resolves to video.
var videoPhrases = []string{
	"show me",
	"make a video",
	"video of",
	"create video",
}

var imagePhrases = []string{
	"generate image",
	"create picture",
	"draw a",
	"paint a",
}

// Classify inspects a prompt for media request phrases. Matching is
// case-insensitive substring search.
func Classify(prompt string) Intent {
	lower := strings.ToLower(prompt)
	for _, phrase := range videoPhrases {
		if strings.Contains(lower, phrase) {
			return IntentVideo
		}
	}
	for _, phrase := range imagePhrases {
		if strings.Contains(lower, phrase) {
			return IntentImage
		}
	}
	return IntentPlain
}
