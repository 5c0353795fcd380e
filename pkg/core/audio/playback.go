// Package audio owns speech playback and microphone capture for the
// tutoring session.
package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	// PlaybackSampleRateHz is the fixed output rate for synthesized speech.
	PlaybackSampleRateHz = 24000
	// MicSampleRateHz is the capture rate expected by the live session.
	MicSampleRateHz = 16000

	channels       = 1
	bytesPerSample = 2
)

// Synthesizer is the slice of the gateway the playback manager needs.
type Synthesizer interface {
	SynthesizeSpeech(ctx context.Context, text, voiceID string) ([]byte, error)
}

// Speaker turns raw PCM into audible output. Start begins playback
// immediately and invokes onDone on natural completion.
type Speaker interface {
	Start(pcm []byte, onDone func()) (Source, error)
}

// Source is one playing audio source. Stop is safe to call on sources that
// already finished.
type Source interface {
	Stop()
}

// Settings reports whether audio is enabled and which voice to use.
// The state store satisfies this through a small adapter in the caller.
type Settings interface {
	AudioEnabled() bool
	Voice() string
}

// Manager decodes synthesized speech into playable sources, tracks every
// active source, and can halt all of them on demand. Live audio chunks are
// scheduled back-to-back with no overlap.
type Manager struct {
	synth    Synthesizer
	settings Settings
	logger   *slog.Logger

	newSpeaker func() (Speaker, error)

	now   func() time.Time
	after func(d time.Duration, fn func()) *time.Timer

	mu        sync.Mutex
	speaker   Speaker
	active    map[int64]*playback
	nextID    int64
	nextStart time.Time // end of the last scheduled chunk; zero when idle
}

// Option configures a Manager.
type Option func(*Manager)

// WithSpeakerFactory overrides the lazily-created speaker device.
func WithSpeakerFactory(fn func() (Speaker, error)) Option {
	return func(m *Manager) { m.newSpeaker = fn }
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func withClock(now func() time.Time, after func(time.Duration, func()) *time.Timer) Option {
	return func(m *Manager) {
		m.now = now
		m.after = after
	}
}

// NewManager creates a playback manager. The speaker device is opened
// lazily on first use.
func NewManager(synth Synthesizer, settings Settings, opts ...Option) *Manager {
	m := &Manager{
		synth:      synth,
		settings:   settings,
		logger:     slog.Default(),
		newSpeaker: NewOtoSpeaker,
		now:        time.Now,
		after:      time.AfterFunc,
		active:     make(map[int64]*playback),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Play synthesizes text and starts playback immediately. It is a no-op when
// audio is disabled; every failure is logged and swallowed since speech is a
// non-critical enhancement.
func (m *Manager) Play(ctx context.Context, text string) {
	if m == nil || text == "" {
		return
	}
	if !m.settings.AudioEnabled() {
		return
	}

	pcm, err := m.synth.SynthesizeSpeech(ctx, text, m.settings.Voice())
	if err != nil {
		m.logger.Warn("speech synthesis failed", "error", err)
		return
	}
	if len(pcm) == 0 {
		// Best-effort failure from the gateway.
		return
	}
	m.startNow(pcm)
}

// Schedule queues a live audio chunk for gapless playback: the chunk starts
// at max(now, end of the previous chunk) and the cursor advances by the
// chunk's duration.
func (m *Manager) Schedule(pcm []byte) {
	if m == nil || len(pcm) == 0 {
		return
	}

	m.mu.Lock()
	now := m.now()
	start := now
	if m.nextStart.After(now) {
		start = m.nextStart
	}
	m.nextStart = start.Add(Duration(len(pcm)))
	id := m.track()
	m.mu.Unlock()

	delay := start.Sub(now)
	if delay <= 0 {
		m.begin(id, pcm)
		return
	}
	timer := m.after(delay, func() { m.begin(id, pcm) })
	m.mu.Lock()
	entry, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		// StopAll won the race; the pending start must not fire.
		timer.Stop()
		return
	}
	entry.attachTimer(timer)
}

// StopAll halts every tracked source, clears the set, and resets the
// scheduling cursor. Idempotent.
func (m *Manager) StopAll() {
	if m == nil {
		return
	}
	m.mu.Lock()
	entries := make([]*playback, 0, len(m.active))
	for _, entry := range m.active {
		entries = append(entries, entry)
	}
	m.active = make(map[int64]*playback)
	m.nextStart = time.Time{}
	m.mu.Unlock()

	for _, entry := range entries {
		entry.stop()
	}
}

// ActiveCount returns the number of tracked sources, including chunks still
// waiting for their scheduled start.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) startNow(pcm []byte) {
	m.mu.Lock()
	id := m.track()
	m.mu.Unlock()
	m.begin(id, pcm)
}

// track registers a new playback entry. Caller holds m.mu.
func (m *Manager) track() int64 {
	id := m.nextID
	m.nextID++
	m.active[id] = &playback{}
	return id
}

func (m *Manager) begin(id int64, pcm []byte) {
	speaker, err := m.device()
	if err != nil {
		m.logger.Warn("audio output unavailable", "error", err)
		m.untrack(id)
		return
	}

	m.mu.Lock()
	_, tracked := m.active[id]
	m.mu.Unlock()
	if !tracked {
		return
	}

	src, err := speaker.Start(pcm, func() { m.untrack(id) })
	if err != nil {
		m.logger.Warn("audio playback failed", "error", err)
		m.untrack(id)
		return
	}

	m.mu.Lock()
	entry, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		// Stopped while starting.
		src.Stop()
		return
	}
	entry.attach(src)
}

func (m *Manager) untrack(id int64) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

// cursor reports the end of the last scheduled chunk.
func (m *Manager) cursor() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextStart
}

func (m *Manager) device() (Speaker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.speaker != nil {
		return m.speaker, nil
	}
	speaker, err := m.newSpeaker()
	if err != nil {
		return nil, err
	}
	m.speaker = speaker
	return speaker, nil
}

// Duration returns the playback duration of n bytes of 24kHz mono s16le PCM.
func Duration(n int) time.Duration {
	bytesPerSecond := PlaybackSampleRateHz * channels * bytesPerSample
	return time.Duration(n) * time.Second / time.Duration(bytesPerSecond)
}

// playback is one tracked source: either a pending timer, a started source,
// or both over its lifetime.
type playback struct {
	mu      sync.Mutex
	timer   *time.Timer
	src     Source
	stopped bool
}

func (p *playback) attachTimer(timer *time.Timer) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		timer.Stop()
		return
	}
	p.timer = timer
	p.mu.Unlock()
}

func (p *playback) attach(src Source) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		src.Stop()
		return
	}
	p.src = src
	p.mu.Unlock()
}

func (p *playback) stop() {
	p.mu.Lock()
	p.stopped = true
	timer := p.timer
	src := p.src
	p.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if src != nil {
		src.Stop()
	}
}
