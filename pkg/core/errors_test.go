package core

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrGeneration,
		Message: "model unavailable",
	}

	expected := "generation_error: model unavailable"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrSession,
		Message: "handshake rejected",
		Code:    "setup_failed",
	}

	expected := "session_error: handshake rejected (code: setup_failed)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("profile name is required")
	if err.Type != ErrValidation {
		t.Errorf("Type = %v, want %v", err.Type, ErrValidation)
	}
	if err.Message != "profile name is required" {
		t.Errorf("Message = %q, want %q", err.Message, "profile name is required")
	}
}

func TestWrapGenerationError_Unwrap(t *testing.T) {
	underlying := errors.New("connection reset")
	err := WrapGenerationError("generate image", underlying)

	if !errors.Is(err, underlying) {
		t.Fatalf("errors.Is(err, underlying) = false, want true")
	}
	if err.Error() != "generation_error: generate image: connection reset" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestIsType(t *testing.T) {
	err := NewMediaAccessError("microphone unavailable")

	if !IsType(err, ErrMediaAccess) {
		t.Errorf("IsType(err, ErrMediaAccess) = false, want true")
	}
	if IsType(err, ErrGeneration) {
		t.Errorf("IsType(err, ErrGeneration) = true, want false")
	}
	if IsType(errors.New("plain"), ErrMediaAccess) {
		t.Errorf("IsType(plain error) = true, want false")
	}
}
