// Package spelling runs the timed spelling challenge.
package spelling

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gemikid/tutor/pkg/core"
	"github.com/gemikid/tutor/pkg/core/state"
	"github.com/gemikid/tutor/pkg/core/types"
)

// RoundSeconds is the time budget for one challenge run.
const RoundSeconds = 60

// WordSource fetches the word list for a class level.
type WordSource interface {
	FetchWordList(ctx context.Context, classLevel string) ([]types.SpellingWord, error)
}

// Announcer speaks challenge prompts aloud.
type Announcer interface {
	Play(ctx context.Context, text string)
}

// Controller drives one challenge run at a time against the shared state.
// The countdown, answer checks, and word advancement all mutate the
// Challenge sub-state through the store.
type Controller struct {
	gw     WordSource
	store  *state.Store
	player Announcer
	logger *slog.Logger

	// tick is the countdown granularity. One second of game time per tick.
	tick time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithTickInterval shortens the countdown tick. For tests.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) { c.tick = d }
}

// NewController creates an idle challenge controller.
func NewController(gw WordSource, store *state.Store, player Announcer, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		gw:     gw,
		store:  store,
		player: player,
		logger: logger,
		tick:   time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start fetches a word list, resets the challenge state, announces the
// first word, and starts the countdown. An empty word list finishes the
// run immediately.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stop != nil {
		c.mu.Unlock()
		return core.NewSessionError("a spelling challenge is already running")
	}
	c.mu.Unlock()

	snap := c.store.Update(func(st *state.State) {
		st.Processing = true
		st.LastError = ""
	})

	words, err := c.gw.FetchWordList(ctx, snap.ClassLevel)
	c.store.Update(func(st *state.State) { st.Processing = false })
	if err != nil {
		wrapped := core.WrapGenerationError("fetch word list", err)
		c.store.SetError(wrapped)
		return wrapped
	}

	c.store.Update(func(st *state.State) {
		st.Challenge = state.Challenge{
			Active:   true,
			TimeLeft: RoundSeconds,
			Words:    words,
		}
		if len(words) == 0 {
			st.Challenge.Finished = true
			st.Challenge.TimeLeft = 0
		}
	})
	if len(words) == 0 {
		c.logger.Warn("word list came back empty", "class", snap.ClassLevel)
		return nil
	}

	c.announce(ctx, words[0])

	stop := make(chan struct{})
	c.mu.Lock()
	c.stop = stop
	c.mu.Unlock()
	go c.countdown(stop)
	return nil
}

// Submit checks an answer against the current word. A correct answer scores
// a point; every answer advances to the next word. Exhausting the list ends
// the run.
func (c *Controller) Submit(ctx context.Context, answer string) error {
	var (
		next     types.SpellingWord
		hasNext  bool
		finished bool
	)
	err := func() error {
		var submitErr error
		c.store.Update(func(st *state.State) {
			ch := &st.Challenge
			if !ch.Active || ch.Finished {
				submitErr = core.NewValidationError("no spelling challenge is running")
				return
			}
			word, ok := ch.CurrentWord()
			if !ok {
				submitErr = core.NewValidationError("no spelling challenge is running")
				return
			}
			if strings.EqualFold(strings.TrimSpace(answer), word.Word) {
				ch.Score++
			}
			ch.CurrentIndex++
			if ch.CurrentIndex >= len(ch.Words) {
				ch.Finished = true
				ch.TimeLeft = 0
				finished = true
				return
			}
			next = ch.Words[ch.CurrentIndex]
			hasNext = true
		})
		return submitErr
	}()
	if err != nil {
		return err
	}

	if finished {
		c.haltCountdown()
		return nil
	}
	if hasNext {
		c.announce(ctx, next)
	}
	return nil
}

// Dismiss leaves the challenge and resets its state entirely.
func (c *Controller) Dismiss() {
	c.haltCountdown()
	c.store.Update(func(st *state.State) {
		st.Challenge = state.Challenge{}
	})
}

func (c *Controller) announce(ctx context.Context, w types.SpellingWord) {
	if c.player == nil {
		return
	}
	c.player.Play(ctx, fmt.Sprintf("Spell the word: %s. It means %s.", w.Word, w.Translation))
}

func (c *Controller) countdown(stop chan struct{}) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			var done bool
			c.store.Update(func(st *state.State) {
				ch := &st.Challenge
				if !ch.Active || ch.Finished {
					done = true
					return
				}
				ch.TimeLeft--
				if ch.TimeLeft <= 0 {
					ch.TimeLeft = 0
					ch.Finished = true
					done = true
				}
			})
			if done {
				c.haltCountdown()
				return
			}
		}
	}
}

// haltCountdown stops the ticker goroutine. Idempotent.
func (c *Controller) haltCountdown() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}
