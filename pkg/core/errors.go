package core

import (
	"errors"
	"fmt"
)

// Error is the canonical error for every failure crossing a component
// boundary. Controllers convert these into a single user-facing message.
type Error struct {
	Type     ErrorType `json:"type"`
	Message  string    `json:"message"`
	Code     string    `json:"code,omitempty"`
	Upstream any       `json:"upstream,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrGeneration covers remote completion, image, and video failures.
	ErrGeneration ErrorType = "generation_error"
	// ErrTranscription covers speech-to-text failures.
	ErrTranscription ErrorType = "transcription_error"
	// ErrMediaAccess covers microphone/camera permission or device failures.
	ErrMediaAccess ErrorType = "media_access_error"
	// ErrSession covers live-session open/communication failures.
	ErrSession ErrorType = "session_error"
	// ErrValidation covers malformed local input.
	ErrValidation ErrorType = "validation_error"
)

// NewGenerationError creates a generation error.
func NewGenerationError(message string) *Error {
	return &Error{
		Type:    ErrGeneration,
		Message: message,
	}
}

// WrapGenerationError wraps an upstream failure as a generation error.
func WrapGenerationError(op string, underlying error) *Error {
	return &Error{
		Type:     ErrGeneration,
		Message:  fmt.Sprintf("%s: %v", op, underlying),
		Upstream: underlying,
	}
}

// NewTranscriptionError creates a transcription error.
func NewTranscriptionError(message string) *Error {
	return &Error{
		Type:    ErrTranscription,
		Message: message,
	}
}

// WrapTranscriptionError wraps an upstream failure as a transcription error.
func WrapTranscriptionError(underlying error) *Error {
	return &Error{
		Type:     ErrTranscription,
		Message:  underlying.Error(),
		Upstream: underlying,
	}
}

// NewMediaAccessError creates a media access error.
func NewMediaAccessError(message string) *Error {
	return &Error{
		Type:    ErrMediaAccess,
		Message: message,
	}
}

// NewSessionError creates a live session error.
func NewSessionError(message string) *Error {
	return &Error{
		Type:    ErrSession,
		Message: message,
	}
}

// WrapSessionError wraps an upstream failure as a session error.
func WrapSessionError(op string, underlying error) *Error {
	return &Error{
		Type:     ErrSession,
		Message:  fmt.Sprintf("%s: %v", op, underlying),
		Upstream: underlying,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *Error {
	return &Error{
		Type:    ErrValidation,
		Message: message,
	}
}

// IsType reports whether err is a *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == t
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	if ue, ok := e.Upstream.(error); ok {
		return ue
	}
	return nil
}
