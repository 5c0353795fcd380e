package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// SynthesizeSpeech converts text to 24kHz mono s16le PCM using the given
// prebuilt voice. A response without audio is reported as a nil slice with
// no error; playback treats it as a skipped enhancement.
func (p *Provider) SynthesizeSpeech(ctx context.Context, text, voiceID string) ([]byte, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voiceID},
			},
		},
	}

	resp, err := p.client.Models.GenerateContent(ctx, modelSpeech, genai.Text(text), config)
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	p.logger.Warn("speech response carried no audio", "voice", voiceID)
	return nil, nil
}

// Transcribe converts recorded audio to plain text.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText("Transcribe this audio recording. Reply with the transcription only."),
			genai.NewPartFromBytes(audio, mimeType),
		}, genai.RoleUser),
	}

	resp, err := p.client.Models.GenerateContent(ctx, modelFull, contents, nil)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	return resp.Text(), nil
}
