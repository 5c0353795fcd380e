// Package gemini implements the gateway against the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"
)

// Model routing. The fast path trades depth for latency; the thinking model
// is used when reasoning mode is on.
const (
	modelFull     = "gemini-2.0-flash-exp"
	modelFast     = "gemini-1.5-flash-8b"
	modelThinking = "gemini-2.0-flash-thinking-exp"
	modelWords    = "gemini-1.5-flash"
	modelSpeech   = "gemini-2.5-flash-preview-tts"
	modelImage    = "imagen-3.0-generate-002"
	modelVideo    = "veo-2.0-generate-001"
	modelLive     = "gemini-2.0-flash-exp"
)

const defaultLiveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"

// systemPrompt frames every reply for a young student.
const systemPrompt = "You are Gemi, a warm and patient tutor for young children. " +
	"Answer in short, simple sentences a child can follow. Be encouraging, " +
	"never condescending, and keep every answer safe and age-appropriate. " +
	"When a question is about schoolwork, teach the idea rather than just " +
	"giving the answer."

const explanationPrompt = "Explain your answer step by step, one small idea at a time."

// Provider talks to the Gemini API. It implements the gateway interface.
type Provider struct {
	client *genai.Client
	logger *slog.Logger

	apiKey       string
	liveEndpoint string
	dialer       *websocket.Dialer

	// videoPollInterval paces the polling loop for video operations.
	videoPollInterval time.Duration
}

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// WithLiveEndpoint overrides the live websocket endpoint. For tests.
func WithLiveEndpoint(url string) Option {
	return func(p *Provider) { p.liveEndpoint = url }
}

// WithVideoPollInterval overrides the video operation polling cadence.
func WithVideoPollInterval(d time.Duration) Option {
	return func(p *Provider) { p.videoPollInterval = d }
}

// NewProvider creates a provider backed by the public Gemini API.
func NewProvider(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	p := &Provider{
		client:            client,
		logger:            slog.Default(),
		apiKey:            apiKey,
		liveEndpoint:      defaultLiveEndpoint,
		dialer:            websocket.DefaultDialer,
		videoPollInterval: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// systemInstruction builds the per-turn system content.
func systemInstruction(explanation bool) *genai.Content {
	prompt := systemPrompt
	if explanation {
		prompt += " " + explanationPrompt
	}
	return genai.NewContentFromText(prompt, genai.RoleUser)
}
