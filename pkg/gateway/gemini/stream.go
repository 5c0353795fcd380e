package gemini

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/gemikid/tutor/pkg/core/types"
	"github.com/gemikid/tutor/pkg/gateway"
)

// StreamReply opens a streamed completion for one turn. The returned stream
// delivers text chunks in model order; grounding sources ride along on the
// chunks that carried them.
func (p *Provider) StreamReply(ctx context.Context, req gateway.ReplyRequest) (gateway.ReplyStream, error) {
	model := modelFull
	switch {
	case req.Reasoning:
		model = modelThinking
	case req.Mode == gateway.ModeFast:
		model = modelFast
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction(req.Explanation),
	}
	if req.Mode == gateway.ModeSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	contents := buildContents(req)

	streamCtx, cancel := context.WithCancel(ctx)
	rs := &replyStream{
		cancel: cancel,
		ch:     make(chan gateway.ReplyChunk, 16),
	}

	go func() {
		defer close(rs.ch)
		for resp, err := range p.client.Models.GenerateContentStream(streamCtx, model, contents, config) {
			if err != nil {
				rs.setErr(fmt.Errorf("generate content: %w", err))
				return
			}
			chunk, ok := chunkFromResponse(resp)
			if !ok {
				continue
			}
			select {
			case rs.ch <- chunk:
			case <-streamCtx.Done():
				rs.setErr(streamCtx.Err())
				return
			}
		}
	}()

	return rs, nil
}

// buildContents turns the bounded history plus the framed prompt into the
// request contents, oldest first.
func buildContents(req gateway.ReplyRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, msg := range req.History {
		role := genai.RoleUser
		if msg.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Text, genai.Role(role)))
	}

	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.Image != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType))
	}
	if req.Video != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Video.Data, req.Video.MIMEType))
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	return contents
}

// chunkFromResponse extracts the text delta and any web grounding sources.
func chunkFromResponse(resp *genai.GenerateContentResponse) (gateway.ReplyChunk, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return gateway.ReplyChunk{}, false
	}
	cand := resp.Candidates[0]

	var chunk gateway.ReplyChunk
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			chunk.Text += part.Text
		}
	}
	if cand.GroundingMetadata != nil {
		for _, gc := range cand.GroundingMetadata.GroundingChunks {
			if gc.Web == nil || gc.Web.URI == "" {
				continue
			}
			chunk.Sources = append(chunk.Sources, types.GroundingSource{
				Title: gc.Web.Title,
				URI:   gc.Web.URI,
			})
		}
	}
	if chunk.Text == "" && len(chunk.Sources) == 0 {
		return gateway.ReplyChunk{}, false
	}
	return chunk, true
}

type replyStream struct {
	cancel context.CancelFunc
	ch     chan gateway.ReplyChunk

	mu  sync.Mutex
	err error
}

func (s *replyStream) Chunks() <-chan gateway.ReplyChunk { return s.ch }

func (s *replyStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *replyStream) Close() error {
	s.cancel()
	return nil
}

func (s *replyStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
