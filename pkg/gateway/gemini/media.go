package gemini

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// GenerateImage produces one image for the prompt at the requested aspect
// ratio.
func (p *Provider) GenerateImage(ctx context.Context, prompt, aspectRatio string) ([]byte, error) {
	config := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    aspectRatio,
	}
	resp, err := p.client.Models.GenerateImages(ctx, modelImage, prompt, config)
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("generate image: response carried no image")
	}
	return resp.GeneratedImages[0].Image.ImageBytes, nil
}

// GenerateVideo starts a video generation operation and polls it to
// completion. Video generation routinely takes minutes; the caller's
// context bounds the wait.
func (p *Provider) GenerateVideo(ctx context.Context, prompt, aspectRatio string) (string, error) {
	config := &genai.GenerateVideosConfig{AspectRatio: aspectRatio}
	op, err := p.client.Models.GenerateVideos(ctx, modelVideo, prompt, nil, config)
	if err != nil {
		return "", fmt.Errorf("generate video: %w", err)
	}

	for !op.Done {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(p.videoPollInterval):
		}
		op, err = p.client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return "", fmt.Errorf("poll video operation: %w", err)
		}
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return "", fmt.Errorf("generate video: operation finished without a video")
	}
	video := op.Response.GeneratedVideos[0].Video
	if video.URI == "" {
		return "", fmt.Errorf("generate video: video carried no URI")
	}
	return video.URI, nil
}
