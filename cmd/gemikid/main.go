// Command gemikid is the terminal front end for the tutoring session.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/gemikid/tutor/internal/config"
	"github.com/gemikid/tutor/pkg/core"
	"github.com/gemikid/tutor/pkg/core/audio"
	"github.com/gemikid/tutor/pkg/core/chat"
	"github.com/gemikid/tutor/pkg/core/live"
	"github.com/gemikid/tutor/pkg/core/spelling"
	"github.com/gemikid/tutor/pkg/core/state"
	"github.com/gemikid/tutor/pkg/core/types"
	"github.com/gemikid/tutor/pkg/gateway"
	"github.com/gemikid/tutor/pkg/gateway/gemini"
	"github.com/gemikid/tutor/pkg/profile"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Parse(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gemikid: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "gemikid: %v\n", err)
		os.Exit(1)
	}
}

// storeSettings adapts the state store to the playback settings interface.
type storeSettings struct {
	store *state.Store
}

func (s storeSettings) AudioEnabled() bool {
	return s.store.Snapshot().AudioEnabled
}

func (s storeSettings) Voice() string {
	return s.store.Snapshot().Voice
}

type app struct {
	cfg      config.Config
	store    *state.Store
	profiles *profile.Store
	provider *gemini.Provider
	player   *audio.Manager
	session  *chat.Session
	dialogue *live.Controller
	spell    *spelling.Controller
	logger   *slog.Logger

	// Attachments queued for the next chat turn.
	pendingImage *gateway.Attachment
	pendingVideo *gateway.Attachment

	out    io.Writer
	errOut io.Writer
}

func run(ctx context.Context, cfg config.Config, in io.Reader, out, errOut io.Writer) error {
	level := slog.LevelWarn
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: level}))

	if err := os.MkdirAll(filepath.Dir(cfg.ProfileDBPath), 0o755); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}
	profiles, err := profile.Open(cfg.ProfileDBPath)
	if err != nil {
		return err
	}
	defer profiles.Close()

	provider, err := gemini.NewProvider(ctx, cfg.APIKey, gemini.WithLogger(logger))
	if err != nil {
		return err
	}

	store := state.NewStore()
	store.Update(func(st *state.State) {
		st.Voice = cfg.Voice
		st.ClassLevel = cfg.ClassLevel
		st.ImageAspectRatio = cfg.AspectRatio
	})

	player := audio.NewManager(provider, storeSettings{store: store}, audio.WithLogger(logger))
	a := &app{
		cfg:      cfg,
		store:    store,
		profiles: profiles,
		provider: provider,
		player:   player,
		session:  chat.NewSession(provider, store, player, logger),
		dialogue: live.NewController(provider, store, player, nil, logger),
		spell:    spelling.NewController(provider, store, player, logger),
		logger:   logger,
		out:      out,
		errOut:   errOut,
	}

	scanner := bufio.NewScanner(in)
	if err := a.onboard(scanner); err != nil {
		return err
	}

	a.watchReplies()

	fmt.Fprintln(out, "Ask me anything! Type /help for commands, /quit to leave.")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Fprintln(out)
			a.shutdown()
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			fmt.Fprintln(out, "Bye! Keep learning!")
			a.shutdown()
			return nil
		}
		if strings.HasPrefix(line, "/") {
			a.handleCommand(ctx, line)
			continue
		}

		if a.store.Snapshot().Challenge.Active {
			a.submitSpelling(ctx, line)
			continue
		}

		a.submitTurn(ctx, line)
	}
}

// onboard collects the student profile on first launch.
func (a *app) onboard(scanner *bufio.Scanner) error {
	p, ok, err := a.profiles.Load()
	if err != nil {
		return err
	}
	if ok {
		a.store.Update(func(st *state.State) { st.Profile = &p })
		fmt.Fprintf(a.out, "Welcome back, %s!\n", p.Name)
		return nil
	}

	a.store.Update(func(st *state.State) { st.OnboardingOpen = true })
	fmt.Fprintln(a.out, "Hi! Let's get to know each other first.")
	for {
		fmt.Fprint(a.out, "What's your name? ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		p.Name = strings.TrimSpace(scanner.Text())

		fmt.Fprint(a.out, "A parent's phone number? ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		p.PhoneNumber = strings.TrimSpace(scanner.Text())

		if err := a.profiles.Save(p); err != nil {
			fmt.Fprintf(a.errOut, "%v\n", err)
			continue
		}
		break
	}
	a.store.Update(func(st *state.State) {
		st.Profile = &p
		st.OnboardingOpen = false
	})
	fmt.Fprintf(a.out, "Nice to meet you, %s!\n", p.Name)
	return nil
}

// watchReplies renders streamed assistant text incrementally.
func (a *app) watchReplies() {
	var mu sync.Mutex
	lastID := ""
	printed := 0
	a.session.Subscribe(func(msgs []types.Message) {
		mu.Lock()
		defer mu.Unlock()
		if len(msgs) == 0 {
			return
		}
		last := msgs[len(msgs)-1]
		if last.Role != types.RoleAssistant {
			return
		}
		if last.ID != lastID {
			lastID = last.ID
			printed = 0
		}
		if len(last.Text) > printed {
			fmt.Fprint(a.out, last.Text[printed:])
			printed = len(last.Text)
		}
	})
}

func (a *app) submitTurn(ctx context.Context, line string) {
	turnCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	input := chat.TurnInput{Text: line, Image: a.pendingImage, Video: a.pendingVideo}
	a.pendingImage, a.pendingVideo = nil, nil

	err := a.session.Submit(turnCtx, input)
	fmt.Fprintln(a.out)
	if err != nil {
		fmt.Fprintf(a.errOut, "%v\n", err)
		return
	}

	// A turn may have appended a media message ahead of the text reply, so
	// render everything after the user message that opened it.
	msgs := a.session.Messages()
	start := len(msgs)
	for start > 0 && msgs[start-1].Role == types.RoleAssistant {
		start--
	}
	for _, msg := range msgs[start:] {
		if len(msg.ImageData) > 0 {
			path := fmt.Sprintf("gemikid-image-%s.png", msg.ID[:8])
			if err := os.WriteFile(path, msg.ImageData, 0o644); err != nil {
				fmt.Fprintf(a.errOut, "save image: %v\n", err)
			} else {
				fmt.Fprintf(a.out, "[image saved to %s]\n", path)
			}
		}
		if msg.VideoURI != "" {
			fmt.Fprintf(a.out, "[video ready: %s]\n", msg.VideoURI)
		}
		for _, src := range msg.Sources {
			fmt.Fprintf(a.out, "  source: %s (%s)\n", src.Title, src.URI)
		}
	}
	if msg := a.store.Snapshot().LastError; msg != "" {
		fmt.Fprintf(a.errOut, "note: %s\n", msg)
	}
}

func (a *app) submitSpelling(ctx context.Context, answer string) {
	if err := a.spell.Submit(ctx, answer); err != nil {
		fmt.Fprintf(a.errOut, "%v\n", err)
		return
	}
	a.printSpellingState()
}

func (a *app) printSpellingState() {
	ch := a.store.Snapshot().Challenge
	if !ch.Active {
		return
	}
	if ch.Finished {
		fmt.Fprintf(a.out, "Time's up! You spelled %d of %d words. Type /dismiss to go back to chat.\n", ch.Score, len(ch.Words))
		return
	}
	if word, ok := ch.CurrentWord(); ok {
		fmt.Fprintf(a.out, "Spell the word: it means %q", word.Translation)
		if word.Hint != "" {
			fmt.Fprintf(a.out, " (hint: %s)", word.Hint)
		}
		fmt.Fprintf(a.out, "  [score %d, %ds left]\n", ch.Score, ch.TimeLeft)
	}
}

func (a *app) handleCommand(ctx context.Context, line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		a.printHelp()
	case "/live":
		if err := a.dialogue.Toggle(ctx); err != nil {
			fmt.Fprintf(a.errOut, "%v\n", err)
			return
		}
		if a.dialogue.Status() == live.StatusOpen {
			fmt.Fprintln(a.out, "Live dialogue on. Speak into the microphone; /live again to stop.")
		} else {
			fmt.Fprintln(a.out, "Live dialogue off.")
		}
	case "/spell":
		spellCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		err := a.spell.Start(spellCtx)
		cancel()
		if err != nil {
			fmt.Fprintf(a.errOut, "%v\n", err)
			return
		}
		fmt.Fprintln(a.out, "Spelling challenge! Type each word you hear. /dismiss to leave.")
		a.printSpellingState()
	case "/dismiss":
		a.spell.Dismiss()
		fmt.Fprintln(a.out, "Back to chat.")
	case "/audio":
		snap := a.store.Update(func(st *state.State) { st.AudioEnabled = !st.AudioEnabled })
		if snap.AudioEnabled {
			fmt.Fprintln(a.out, "Audio on.")
		} else {
			a.player.StopAll()
			fmt.Fprintln(a.out, "Audio off.")
		}
	case "/mode":
		a.setMode(arg)
	case "/class":
		if arg == "" {
			fmt.Fprintf(a.out, "class level: %s\n", orNone(a.store.Snapshot().ClassLevel))
			return
		}
		if !containsString(config.ClassLevels, arg) {
			fmt.Fprintf(a.errOut, "unknown class level %q: choose one of %s\n", arg, strings.Join(config.ClassLevels, ", "))
			return
		}
		a.store.Update(func(st *state.State) { st.ClassLevel = arg })
		fmt.Fprintf(a.out, "class level set to %s\n", arg)
	case "/voice":
		if arg == "" {
			fmt.Fprintf(a.out, "voice: %s\n", a.store.Snapshot().Voice)
			return
		}
		if !containsString(config.Voices, arg) {
			fmt.Fprintf(a.errOut, "unknown voice %q: choose one of %s\n", arg, strings.Join(config.Voices, ", "))
			return
		}
		a.store.Update(func(st *state.State) { st.Voice = arg })
		fmt.Fprintf(a.out, "voice set to %s\n", arg)
	case "/think":
		snap := a.store.Update(func(st *state.State) { st.ReasoningMode = !st.ReasoningMode })
		fmt.Fprintf(a.out, "reasoning mode: %v\n", snap.ReasoningMode)
	case "/explain":
		snap := a.store.Update(func(st *state.State) { st.ExplanationMode = !st.ExplanationMode })
		fmt.Fprintf(a.out, "explanation mode: %v\n", snap.ExplanationMode)
	case "/profile":
		a.handleProfile(arg)
	case "/say":
		if arg == "" {
			fmt.Fprintln(a.errOut, "usage: /say <text>")
			return
		}
		a.player.Play(ctx, arg)
	case "/image":
		a.attach(arg, "/image", &a.pendingImage, imageMIMEType)
	case "/video":
		a.attach(arg, "/video", &a.pendingVideo, videoMIMEType)
	case "/transcribe":
		a.handleTranscribe(ctx, arg)
	case "/clear":
		if err := a.session.Clear(); err != nil {
			fmt.Fprintf(a.errOut, "%v\n", err)
			return
		}
		fmt.Fprintln(a.out, "History cleared.")
	default:
		fmt.Fprintf(a.errOut, "unknown command %s (try /help)\n", cmd)
	}
}

func (a *app) setMode(arg string) {
	mode := state.ResponseMode(arg)
	switch mode {
	case state.ModeFast, state.ModeFull, state.ModeSearch:
		a.store.Update(func(st *state.State) { st.ResponseMode = mode })
		fmt.Fprintf(a.out, "response mode: %s\n", mode)
	case "":
		fmt.Fprintf(a.out, "response mode: %s\n", a.store.Snapshot().ResponseMode)
	default:
		fmt.Fprintln(a.errOut, "usage: /mode fast|full|search")
	}
}

func (a *app) handleProfile(arg string) {
	if arg == "" {
		snap := a.store.Snapshot()
		if snap.Profile == nil {
			fmt.Fprintln(a.out, "no profile saved")
			return
		}
		fmt.Fprintf(a.out, "name: %s, phone: %s\n", snap.Profile.Name, snap.Profile.PhoneNumber)
		return
	}

	name, phone, ok := strings.Cut(arg, ",")
	if !ok {
		fmt.Fprintln(a.errOut, "usage: /profile <name>,<phone>")
		return
	}
	p := types.StudentProfile{Name: strings.TrimSpace(name), PhoneNumber: strings.TrimSpace(phone)}
	if err := a.profiles.Save(p); err != nil {
		fmt.Fprintf(a.errOut, "%v\n", err)
		return
	}
	a.store.Update(func(st *state.State) { st.Profile = &p })
	fmt.Fprintf(a.out, "profile updated for %s\n", p.Name)
}

// attach queues a media file for the next chat turn.
func (a *app) attach(path, cmd string, slot **gateway.Attachment, mime func(string) string) {
	if path == "" {
		fmt.Fprintf(a.errOut, "usage: %s <file>\n", cmd)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(a.errOut, "%v\n", err)
		return
	}
	*slot = &gateway.Attachment{MIMEType: mime(path), Data: data}
	fmt.Fprintf(a.out, "attached %s; it goes with your next message\n", filepath.Base(path))
}

// handleTranscribe turns a recording into text and asks about it as a
// regular chat turn.
func (a *app) handleTranscribe(ctx context.Context, path string) {
	if path == "" {
		fmt.Fprintln(a.errOut, "usage: /transcribe <audio file>")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(a.errOut, "%v\n", err)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	text, err := a.provider.Transcribe(callCtx, data, audioMIMEType(path))
	if err != nil {
		fmt.Fprintf(a.errOut, "%v\n", core.WrapTranscriptionError(err))
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		fmt.Fprintln(a.errOut, "nothing to transcribe in that recording")
		return
	}
	fmt.Fprintf(a.out, "you said: %s\n", text)
	a.submitTurn(ctx, text)
}

func (a *app) printHelp() {
	fmt.Fprintln(a.out, `commands:
  /live              toggle the live voice dialogue
  /spell             start a spelling challenge (answers are plain input)
  /dismiss           leave the spelling challenge
  /audio             toggle speech playback
  /mode [m]          show or set the response mode: fast, full, search
  /class [level]     show or set the class level
  /voice [name]      show or set the speech voice
  /think             toggle reasoning mode
  /explain           toggle step-by-step explanations
  /profile [n,p]     show or update the student profile
  /say <text>        speak text aloud
  /image <file>      attach an image to your next message
  /video <file>      attach a video clip to your next message
  /transcribe <file> ask your question from an audio recording
  /clear             clear the chat history
  /quit              leave`)
}

func (a *app) shutdown() {
	a.dialogue.Stop()
	a.spell.Dismiss()
	a.player.StopAll()
	waitForIdle(a.player, 2*time.Second)
}

// waitForIdle gives in-flight playback teardown a moment to settle.
func waitForIdle(m *audio.Manager, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for m.ActiveCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
}

func imageMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/png"
	}
}

func videoMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	default:
		return "video/mp4"
	}
}

func audioMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mp3"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	case ".aac":
		return "audio/aac"
	default:
		return "audio/wav"
	}
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func containsString(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}
