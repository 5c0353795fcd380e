// Package live runs the hands-free two-way audio dialogue.
package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gemikid/tutor/pkg/core"
	"github.com/gemikid/tutor/pkg/core/audio"
	"github.com/gemikid/tutor/pkg/core/state"
	"github.com/gemikid/tutor/pkg/gateway"
)

// Status is the controller's connection state.
type Status string

const (
	StatusClosed  Status = "closed"
	StatusOpening Status = "opening"
	StatusOpen    Status = "open"
)

// Opener is the slice of the gateway the controller uses.
type Opener interface {
	OpenLiveSession(ctx context.Context, voiceID string) (gateway.LiveSession, error)
}

// Output receives the assistant's audio. Interruptions flush everything
// still queued.
type Output interface {
	Schedule(pcm []byte)
	StopAll()
}

// MicFactory opens the capture device. Injected so tests run without
// hardware.
type MicFactory func() (audio.Microphone, error)

// Controller owns at most one live session at a time. It pumps microphone
// frames up and session events down until either side closes.
type Controller struct {
	gw     Opener
	store  *state.Store
	out    Output
	newMic MicFactory
	logger *slog.Logger

	mu      sync.Mutex
	status  Status
	session gateway.LiveSession
	mic     audio.Microphone
}

// NewController creates a closed controller.
func NewController(gw Opener, store *state.Store, out Output, newMic MicFactory, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if newMic == nil {
		newMic = audio.OpenMicrophone
	}
	return &Controller{
		gw:     gw,
		store:  store,
		out:    out,
		newMic: newMic,
		logger: logger,
		status: StatusClosed,
	}
}

// Status reports the connection state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Toggle opens the dialogue when closed and shuts it down otherwise.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	closed := c.status == StatusClosed
	c.mu.Unlock()
	if closed {
		return c.Start(ctx)
	}
	c.Stop()
	return nil
}

// Start opens the session and the microphone and begins pumping. The
// processing flag covers the connection handshake only.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusClosed {
		c.mu.Unlock()
		return core.NewSessionError("live dialogue is already running")
	}
	c.status = StatusOpening
	c.mu.Unlock()

	snap := c.store.Update(func(st *state.State) {
		st.Processing = true
		st.LastError = ""
	})

	session, err := c.gw.OpenLiveSession(ctx, snap.Voice)
	if err != nil {
		wrapped := core.WrapSessionError("open live session", err)
		c.abortStart(wrapped)
		return wrapped
	}

	mic, err := c.newMic()
	if err != nil {
		session.Close()
		c.abortStart(err)
		return err
	}

	c.mu.Lock()
	c.status = StatusOpen
	c.session = session
	c.mic = mic
	c.mu.Unlock()

	c.store.Update(func(st *state.State) {
		st.Processing = false
		st.LiveMode = true
	})

	go c.pumpMic(mic, session)
	go c.pumpEvents(session)
	return nil
}

// Stop tears the dialogue down. Safe to call in any state.
func (c *Controller) Stop() {
	c.teardown(nil)
}

func (c *Controller) abortStart(err error) {
	c.mu.Lock()
	c.status = StatusClosed
	c.mu.Unlock()
	c.store.Update(func(st *state.State) { st.Processing = false })
	c.store.SetError(err)
}

// teardown closes the session and microphone, flushes queued audio, and
// clears the live flag. Idempotent.
func (c *Controller) teardown(reason error) {
	c.mu.Lock()
	if c.status == StatusClosed {
		c.mu.Unlock()
		return
	}
	c.status = StatusClosed
	session := c.session
	mic := c.mic
	c.session = nil
	c.mic = nil
	c.mu.Unlock()

	if mic != nil {
		mic.Close()
	}
	if session != nil {
		session.Close()
	}
	c.out.StopAll()

	c.store.Update(func(st *state.State) {
		st.LiveMode = false
		st.Processing = false
	})
	if reason != nil {
		c.store.SetError(reason)
	}
}

// pumpMic forwards capture frames until the microphone closes or a send
// fails.
func (c *Controller) pumpMic(mic audio.Microphone, session gateway.LiveSession) {
	for frame := range mic.Frames() {
		if err := session.SendAudio(frame); err != nil {
			c.logger.Warn("live audio send failed", "error", err)
			return
		}
	}
}

// pumpEvents plays assistant audio and reacts to interruption and close.
// The event channel closing ends the dialogue.
func (c *Controller) pumpEvents(session gateway.LiveSession) {
	var closeErr error
	for ev := range session.Events() {
		switch ev := ev.(type) {
		case gateway.AudioChunkEvent:
			c.out.Schedule(ev.PCM)
		case gateway.InterruptedEvent:
			c.out.StopAll()
		case gateway.TurnCompleteEvent:
			c.logger.Debug("live turn complete")
		case gateway.ClosedEvent:
			if ev.Err != nil {
				closeErr = core.WrapSessionError("live session", ev.Err)
			}
		}
	}
	c.teardown(closeErr)
}
