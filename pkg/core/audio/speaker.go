package audio

import (
	"bytes"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// otoSpeaker plays PCM through the system output device. One shared oto
// context backs every source; oto allows only a single context per process.
type otoSpeaker struct {
	ctx *oto.Context
}

// NewOtoSpeaker opens the shared audio output context at the fixed
// playback rate.
func NewOtoSpeaker() (Speaker, error) {
	op := &oto.NewContextOptions{
		SampleRate:   PlaybackSampleRateHz,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		// ~100ms buffer keeps live-chunk latency low without glitching.
		BufferSize: 100 * time.Millisecond,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready
	return &otoSpeaker{ctx: ctx}, nil
}

func (s *otoSpeaker) Start(pcm []byte, onDone func()) (Source, error) {
	// The context suspends on some platforms when idle.
	_ = s.ctx.Resume()

	player := s.ctx.NewPlayer(bytes.NewReader(pcm))
	player.Play()

	src := &otoSource{player: player}
	go func() {
		for player.IsPlaying() {
			time.Sleep(20 * time.Millisecond)
		}
		src.Stop()
		if onDone != nil {
			onDone()
		}
	}()
	return src, nil
}

type otoSource struct {
	player *oto.Player
	once   sync.Once
}

// Stop halts playback. Sources that already drained close cleanly; errors
// from the underlying player are ignored.
func (s *otoSource) Stop() {
	s.once.Do(func() {
		_ = s.player.Close()
	})
}
