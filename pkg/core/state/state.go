// Package state holds the shared session state and the single entry point
// through which every controller mutates it.
package state

import (
	"sync"

	"github.com/gemikid/tutor/pkg/core/types"
)

// ResponseMode selects the model path for a text turn.
type ResponseMode string

const (
	ModeFast   ResponseMode = "fast"
	ModeFull   ResponseMode = "full"
	ModeSearch ResponseMode = "search"
)

// Challenge is the spelling challenge sub-state embedded in State.
type Challenge struct {
	Active       bool
	Finished     bool
	Score        int
	TimeLeft     int
	Words        []types.SpellingWord
	CurrentIndex int
}

// CurrentWord returns the word at the current index, or false when the run
// is exhausted. Callers treat out-of-bounds as terminal.
func (c Challenge) CurrentWord() (types.SpellingWord, bool) {
	if c.CurrentIndex < 0 || c.CurrentIndex >= len(c.Words) {
		return types.SpellingWord{}, false
	}
	return c.Words[c.CurrentIndex], true
}

// State is the process-wide session state. It is only ever mutated inside
// Store.Update; controllers observe it through snapshots.
type State struct {
	Processing      bool
	GeneratingImage bool
	GeneratingVideo bool

	// LastError is the single user-facing error message. Replaced by the
	// next error or cleared by the next successful action.
	LastError string

	AudioEnabled    bool
	LiveMode        bool
	ReasoningMode   bool
	ExplanationMode bool
	ResponseMode    ResponseMode

	Profile *types.StudentProfile
	// OnboardingOpen gates chat interaction until a profile is saved.
	OnboardingOpen bool

	ImageAspectRatio string
	ClassLevel       string
	Voice            string

	Challenge Challenge
}

func (s State) clone() State {
	out := s
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	out.Challenge.Words = append([]types.SpellingWord(nil), s.Challenge.Words...)
	return out
}

// Store serializes all state mutations and fans snapshots out to observers.
type Store struct {
	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextSub int
}

// NewStore creates a store with startup defaults.
func NewStore() *Store {
	return &Store{
		state: State{
			AudioEnabled:     true,
			ResponseMode:     ModeFull,
			ImageAspectRatio: "1:1",
			Voice:            "Kore",
		},
		subs: make(map[int]func(State)),
	}
}

// Update applies fn to the state under the store lock and publishes the
// resulting snapshot to every subscriber. It returns the snapshot.
func (st *Store) Update(fn func(*State)) State {
	st.mu.Lock()
	fn(&st.state)
	snap := st.state.clone()
	subs := make([]func(State), 0, len(st.subs))
	for _, sub := range st.subs {
		subs = append(subs, sub)
	}
	st.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
	return snap
}

// Snapshot returns a copy of the current state.
func (st *Store) Snapshot() State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state.clone()
}

// Subscribe registers an observer called with a snapshot after every update.
// The returned func removes the subscription.
func (st *Store) Subscribe(fn func(State)) func() {
	st.mu.Lock()
	id := st.nextSub
	st.nextSub++
	st.subs[id] = fn
	st.mu.Unlock()

	return func() {
		st.mu.Lock()
		delete(st.subs, id)
		st.mu.Unlock()
	}
}

// SetError records err as the user-facing error message. A nil err clears it.
func (st *Store) SetError(err error) {
	st.Update(func(s *State) {
		if err == nil {
			s.LastError = ""
			return
		}
		s.LastError = err.Error()
	})
}
