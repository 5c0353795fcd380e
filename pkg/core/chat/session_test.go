package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gemikid/tutor/pkg/core"
	"github.com/gemikid/tutor/pkg/core/state"
	"github.com/gemikid/tutor/pkg/core/types"
	"github.com/gemikid/tutor/pkg/gateway"
)

type scriptedStream struct {
	ch  chan gateway.ReplyChunk
	err error
}

func newScriptedStream(chunks []gateway.ReplyChunk, err error) *scriptedStream {
	ch := make(chan gateway.ReplyChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return &scriptedStream{ch: ch, err: err}
}

func (s *scriptedStream) Chunks() <-chan gateway.ReplyChunk { return s.ch }
func (s *scriptedStream) Err() error                        { return s.err }
func (s *scriptedStream) Close() error                      { return nil }

type fakeGateway struct {
	mu       sync.Mutex
	requests []gateway.ReplyRequest

	chunks    []gateway.ReplyChunk
	streamErr error
	openErr   error

	imageData []byte
	imageErr  error
	videoURI  string
	videoErr  error

	imageCalls int
	videoCalls int
}

func (f *fakeGateway) StreamReply(_ context.Context, req gateway.ReplyRequest) (gateway.ReplyStream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	return newScriptedStream(f.chunks, f.streamErr), nil
}

func (f *fakeGateway) GenerateImage(context.Context, string, string) ([]byte, error) {
	f.mu.Lock()
	f.imageCalls++
	f.mu.Unlock()
	return f.imageData, f.imageErr
}

func (f *fakeGateway) GenerateVideo(context.Context, string, string) (string, error) {
	f.mu.Lock()
	f.videoCalls++
	f.mu.Unlock()
	return f.videoURI, f.videoErr
}

func (f *fakeGateway) lastRequest(t *testing.T) gateway.ReplyRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no stream request was made")
	}
	return f.requests[len(f.requests)-1]
}

type fakePlayer struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakePlayer) Play(_ context.Context, text string) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
}

func (f *fakePlayer) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func chunksOf(texts ...string) []gateway.ReplyChunk {
	out := make([]gateway.ReplyChunk, len(texts))
	for i, t := range texts {
		out[i] = gateway.ReplyChunk{Text: t}
	}
	return out
}

func TestSubmitTurn_StreamsChunksIntoReply(t *testing.T) {
	gw := &fakeGateway{chunks: chunksOf("Hel", "lo!")}
	store := state.NewStore()
	player := &fakePlayer{}
	s := NewSession(gw, store, player, nil)

	if err := s.SubmitTurn(context.Background(), "hi there"); err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("history length = %d, want 2", len(msgs))
	}
	if msgs[0].Role != types.RoleUser || msgs[0].Text != "hi there" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Role != types.RoleAssistant || msgs[1].Text != "Hello!" {
		t.Errorf("assistant message = %q, want %q", msgs[1].Text, "Hello!")
	}
	if s.Phase() != TurnDone {
		t.Errorf("phase = %v, want TurnDone", s.Phase())
	}
	if got := player.spoken(); len(got) != 1 || got[0] != "Hello!" {
		t.Errorf("spoken = %v, want [Hello!]", got)
	}
	if snap := store.Snapshot(); snap.Processing {
		t.Error("Processing still set after the turn")
	}
}

func TestSubmitTurn_EmptyInputRejected(t *testing.T) {
	gw := &fakeGateway{}
	s := NewSession(gw, state.NewStore(), nil, nil)

	err := s.SubmitTurn(context.Background(), "   \n\t ")
	if !core.IsType(err, core.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if len(s.Messages()) != 0 {
		t.Errorf("history grew on rejected input")
	}
}

func TestSubmitTurn_PublishesEachChunk(t *testing.T) {
	gw := &fakeGateway{chunks: chunksOf("a", "b", "c")}
	s := NewSession(gw, state.NewStore(), nil, nil)

	var mu sync.Mutex
	var assistantTexts []string
	unsub := s.Subscribe(func(msgs []types.Message) {
		mu.Lock()
		defer mu.Unlock()
		if len(msgs) > 0 && msgs[len(msgs)-1].Role == types.RoleAssistant {
			assistantTexts = append(assistantTexts, msgs[len(msgs)-1].Text)
		}
	})
	defer unsub()

	if err := s.SubmitTurn(context.Background(), "hi"); err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"", "a", "ab", "abc"}
	if len(assistantTexts) != len(want) {
		t.Fatalf("assistant snapshots = %v, want %v", assistantTexts, want)
	}
	for i := range want {
		if assistantTexts[i] != want[i] {
			t.Errorf("snapshot %d = %q, want %q", i, assistantTexts[i], want[i])
		}
	}
}

func TestSubmitTurn_HistoryWindowExcludesCurrentPrompt(t *testing.T) {
	gw := &fakeGateway{chunks: chunksOf("ok")}
	s := NewSession(gw, state.NewStore(), nil, nil)

	for i := 0; i < 7; i++ {
		if err := s.SubmitTurn(context.Background(), "question"); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}
	// 12 messages exist before the last turn; the window keeps the last 10
	// and never contains the prompt that opened the turn.
	req := gw.lastRequest(t)
	if len(req.History) != historyWindow {
		t.Fatalf("window length = %d, want %d", len(req.History), historyWindow)
	}
	last := req.History[len(req.History)-1]
	if last.Role != types.RoleAssistant {
		t.Errorf("window ends with %v, want the previous assistant reply", last.Role)
	}
}

func TestSubmitTurn_ClassLevelFramesPrompt(t *testing.T) {
	gw := &fakeGateway{chunks: chunksOf("ok")}
	store := state.NewStore()
	store.Update(func(st *state.State) {
		st.ClassLevel = "Class 3"
		st.ResponseMode = state.ModeFast
	})
	s := NewSession(gw, store, nil, nil)

	if err := s.SubmitTurn(context.Background(), "what is gravity"); err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}

	req := gw.lastRequest(t)
	if req.Prompt != "[Class: Class 3] what is gravity" {
		t.Errorf("prompt = %q", req.Prompt)
	}
	if req.Mode != gateway.ModeFast {
		t.Errorf("mode = %v, want fast", req.Mode)
	}
	msgs := s.Messages()
	if !msgs[len(msgs)-1].Fast {
		t.Error("fast reply not marked")
	}
}

func TestSubmitTurn_ImageIntentAttachesImage(t *testing.T) {
	gw := &fakeGateway{chunks: chunksOf("here it is"), imageData: []byte{1, 2, 3}}
	s := NewSession(gw, state.NewStore(), nil, nil)

	if err := s.SubmitTurn(context.Background(), "draw a blue whale"); err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}
	if gw.imageCalls != 1 {
		t.Fatalf("imageCalls = %d, want 1", gw.imageCalls)
	}
	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want user, image, reply", len(msgs))
	}
	media, reply := msgs[1], msgs[2]
	if string(media.ImageData) != string([]byte{1, 2, 3}) {
		t.Errorf("media image = %v", media.ImageData)
	}
	if reply.Text != "here it is" {
		t.Errorf("reply text = %q", reply.Text)
	}
	if reply.ImageData != nil {
		t.Error("image bytes leaked into the text reply")
	}
}

func TestSubmitTurn_MediaFailureDoesNotAbortReply(t *testing.T) {
	gw := &fakeGateway{chunks: chunksOf("sorry, no picture"), imageErr: errors.New("quota")}
	store := state.NewStore()
	s := NewSession(gw, store, nil, nil)

	if err := s.SubmitTurn(context.Background(), "draw a volcano"); err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}

	msgs := s.Messages()
	if msgs[len(msgs)-1].Text != "sorry, no picture" {
		t.Errorf("reply text = %q", msgs[len(msgs)-1].Text)
	}
	snap := store.Snapshot()
	if snap.LastError == "" {
		t.Error("media failure did not surface as the session error")
	}
	if snap.GeneratingImage {
		t.Error("GeneratingImage still set")
	}
	if s.Phase() != TurnDone {
		t.Errorf("phase = %v, want TurnDone", s.Phase())
	}
}

func TestSubmitTurn_VideoIntentAttachesURI(t *testing.T) {
	gw := &fakeGateway{chunks: chunksOf("enjoy"), videoURI: "https://cdn.example/clip.mp4"}
	s := NewSession(gw, state.NewStore(), nil, nil)

	if err := s.SubmitTurn(context.Background(), "show me a rocket launch"); err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}
	if gw.videoCalls != 1 {
		t.Fatalf("videoCalls = %d, want 1", gw.videoCalls)
	}
	msgs := s.Messages()
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want user, video, reply", len(msgs))
	}
	if msgs[1].VideoURI != "https://cdn.example/clip.mp4" {
		t.Errorf("video uri = %q", msgs[1].VideoURI)
	}
	if msgs[2].Text != "enjoy" {
		t.Errorf("reply text = %q", msgs[2].Text)
	}
}

func TestSubmit_AttachmentReachesGateway(t *testing.T) {
	gw := &fakeGateway{chunks: chunksOf("a fine drawing")}
	s := NewSession(gw, state.NewStore(), nil, nil)

	att := &gateway.Attachment{MIMEType: "image/png", Data: []byte{9, 8, 7}}
	err := s.Submit(context.Background(), TurnInput{Text: "what did I draw?", Image: att})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	req := gw.lastRequest(t)
	if req.Image == nil || string(req.Image.Data) != string(att.Data) {
		t.Errorf("attachment not forwarded: %+v", req.Image)
	}
	msgs := s.Messages()
	if string(msgs[0].ImageData) != string(att.Data) {
		t.Error("user message does not carry the attached image")
	}
}

func TestSubmit_AttachmentWithoutTextAccepted(t *testing.T) {
	gw := &fakeGateway{chunks: chunksOf("that is a cat")}
	s := NewSession(gw, state.NewStore(), nil, nil)

	att := &gateway.Attachment{MIMEType: "image/jpeg", Data: []byte{1}}
	if err := s.Submit(context.Background(), TurnInput{Image: att}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

func TestSubmitTurn_StreamErrorFailsTurn(t *testing.T) {
	gw := &fakeGateway{chunks: chunksOf("par"), streamErr: errors.New("connection reset")}
	store := state.NewStore()
	player := &fakePlayer{}
	s := NewSession(gw, store, player, nil)

	err := s.SubmitTurn(context.Background(), "hi")
	if !core.IsType(err, core.ErrGeneration) {
		t.Fatalf("err = %v, want generation error", err)
	}
	if s.Phase() != TurnFailed {
		t.Errorf("phase = %v, want TurnFailed", s.Phase())
	}
	snap := store.Snapshot()
	if snap.LastError == "" {
		t.Error("stream failure not recorded")
	}
	if snap.Processing {
		t.Error("Processing still set after failure")
	}
	// Partial text stays visible but is not spoken.
	msgs := s.Messages()
	if msgs[len(msgs)-1].Text != "par" {
		t.Errorf("partial text = %q", msgs[len(msgs)-1].Text)
	}
	if len(player.spoken()) != 0 {
		t.Errorf("failed turn was spoken: %v", player.spoken())
	}
}

func TestSubmitTurn_DeduplicatesSources(t *testing.T) {
	src := types.GroundingSource{Title: "Tides", URI: "https://example.org/tides"}
	gw := &fakeGateway{chunks: []gateway.ReplyChunk{
		{Text: "a", Sources: []types.GroundingSource{src}},
		{Text: "b", Sources: []types.GroundingSource{src, {Title: "Moon", URI: "https://example.org/moon"}}},
	}}
	s := NewSession(gw, state.NewStore(), nil, nil)

	if err := s.SubmitTurn(context.Background(), "why are there tides"); err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}
	msgs := s.Messages()
	if got := len(msgs[len(msgs)-1].Sources); got != 2 {
		t.Errorf("sources = %d, want 2", got)
	}
}

func TestSubmitTurn_RejectsConcurrentTurn(t *testing.T) {
	ch := make(chan gateway.ReplyChunk)
	gw := &blockingGateway{stream: &scriptedStream{ch: ch}, started: make(chan struct{})}
	s := NewSession(gw, state.NewStore(), nil, nil)

	done := make(chan error, 1)
	go func() { done <- s.SubmitTurn(context.Background(), "first") }()

	<-gw.started
	err := s.SubmitTurn(context.Background(), "second")
	if !core.IsType(err, core.ErrSession) {
		t.Fatalf("concurrent submit err = %v, want session error", err)
	}

	close(ch)
	if err := <-done; err != nil {
		t.Fatalf("first turn: %v", err)
	}
}

type blockingGateway struct {
	stream  *scriptedStream
	started chan struct{}
	once    sync.Once
}

func (b *blockingGateway) StreamReply(context.Context, gateway.ReplyRequest) (gateway.ReplyStream, error) {
	b.once.Do(func() { close(b.started) })
	return b.stream, nil
}

func (b *blockingGateway) GenerateImage(context.Context, string, string) ([]byte, error) {
	return nil, nil
}

func (b *blockingGateway) GenerateVideo(context.Context, string, string) (string, error) {
	return "", nil
}

func TestClear(t *testing.T) {
	gw := &fakeGateway{chunks: chunksOf("ok")}
	s := NewSession(gw, state.NewStore(), nil, nil)
	if err := s.SubmitTurn(context.Background(), "hi"); err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(s.Messages()) != 0 {
		t.Errorf("history not cleared")
	}
	if s.Phase() != TurnIdle {
		t.Errorf("phase = %v, want TurnIdle", s.Phase())
	}
}

func TestSubmitTurn_ProcessingToggles(t *testing.T) {
	gw := &fakeGateway{chunks: chunksOf("ok")}
	store := state.NewStore()
	s := NewSession(gw, store, nil, nil)

	var mu sync.Mutex
	var seen []bool
	unsub := store.Subscribe(func(st state.State) {
		mu.Lock()
		if len(seen) == 0 || seen[len(seen)-1] != st.Processing {
			seen = append(seen, st.Processing)
		}
		mu.Unlock()
	})
	defer unsub()

	if err := s.SubmitTurn(context.Background(), "hi"); err != nil {
		t.Fatalf("SubmitTurn: %v", err)
	}

	// Subscribers run synchronously inside Update, so the transitions are
	// final once SubmitTurn returns.
	mu.Lock()
	got := append([]bool(nil), seen...)
	mu.Unlock()
	if len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("processing transitions = %v, want [true false]", got)
	}
}
