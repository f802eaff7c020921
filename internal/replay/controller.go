// Package replay implements the timer-driven playback state machine over a
// trace's sequenced steps.
package replay

import (
	"sync"
	"time"
)

// DefaultInterval is the tick period used when none is configured.
const DefaultInterval = 1000 * time.Millisecond

// State is a consistent snapshot of the controller.
type State struct {
	CurrentSequence int  `json:"current_sequence"`
	MaxSequence     int  `json:"max_sequence"`
	IsPlaying       bool `json:"is_playing"`
}

// Controller steps through sequence positions 1..max. It is the only
// stateful component of the core: every mutation goes through one mutex, and
// each scheduled tick carries a generation token so a tick that fires after
// pause/stop/seek/dispose is a no-op rather than a race.
type Controller struct {
	mu       sync.Mutex
	current  int
	max      int
	playing  bool
	interval time.Duration
	timer    *time.Timer
	gen      uint64
	closed   bool
	onChange func(State)
}

// NewController creates a stopped controller positioned at sequence 1 (or 0
// for an empty trace). onChange, if non-nil, fires after every state change
// with the new snapshot; it is invoked outside the lock.
func NewController(max int, interval time.Duration, onChange func(State)) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	c := &Controller{max: max, interval: interval, onChange: onChange}
	if max > 0 {
		c.current = 1
	}
	return c
}

// Play starts or resumes playback. Playing from the final sequence restarts
// at 1 first. A no-op while already playing, on an empty trace, or after
// Close.
func (c *Controller) Play() {
	c.mu.Lock()
	if c.closed || c.playing || c.max == 0 {
		c.mu.Unlock()
		return
	}
	if c.current >= c.max {
		c.current = 1
	}
	c.playing = true
	c.schedule()
	c.notify()
}

// Pause halts playback, keeping the current position. Cancels the pending
// tick.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.closed || !c.playing {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.playing = false
	c.notify()
}

// Stop halts playback and resets to the first sequence, from any state.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.playing = false
	if c.max > 0 {
		c.current = 1
	}
	c.notify()
}

// Seek jumps to sequence n, clamped to [1, max], and implicitly pauses.
func (c *Controller) Seek(n int) {
	c.mu.Lock()
	if c.closed || c.max == 0 {
		c.mu.Unlock()
		return
	}
	c.cancel()
	c.playing = false
	if n < 1 {
		n = 1
	}
	if n > c.max {
		n = c.max
	}
	c.current = n
	c.notify()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close cancels any pending tick and makes every further call a no-op. Must
// be called when the trace is deselected so a dangling timer cannot mutate
// state for a no-longer-displayed trace.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.cancel()
	c.playing = false
	c.closed = true
}

// schedule arms the next tick under the current generation. Caller holds mu.
func (c *Controller) schedule() {
	gen := c.gen
	c.timer = time.AfterFunc(c.interval, func() { c.tick(gen) })
}

// cancel invalidates any outstanding tick. Caller holds mu.
func (c *Controller) cancel() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.gen || !c.playing {
		c.mu.Unlock()
		return
	}
	if c.current >= c.max {
		// Advancing past the end auto-pauses at the final sequence.
		c.cancel()
		c.playing = false
		c.current = c.max
		c.notify()
		return
	}
	c.current++
	c.schedule()
	c.notify()
}

func (c *Controller) snapshotLocked() State {
	return State{CurrentSequence: c.current, MaxSequence: c.max, IsPlaying: c.playing}
}

// notify releases the lock and fires the change callback.
func (c *Controller) notify() {
	st := c.snapshotLocked()
	cb := c.onChange
	c.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}
