// Package mock provides a hand-driven implementation of [audio.Context] for
// unit tests.
//
// The clock never moves on its own: tests call [Context.Advance] to move it
// forward, which fires every due [audio.Context.AfterFunc] callback
// synchronously and in deadline order. Every Play and Stop is recorded.
//
// Typical usage:
//
//	ac := mock.New(audio.Format{SampleRate: 16000, Channels: 1})
//	engine := speech.New(ac, loader)
//	h := engine.Speak(ctx, req)
//	ac.Advance(2 * time.Second) // completion timer fires
//	<-h.Done()
package mock

import (
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/emi/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Context = (*Context)(nil)

// Context is a mock [audio.Context] with a manual clock. It is safe for
// concurrent use.
type Context struct {
	mu        sync.Mutex
	format    audio.Format
	now       time.Duration
	suspended bool
	closed    bool
	timers    []*Timer
	plays     []*Playback

	// DecodeFunc replaces [audio.Decode] when set.
	DecodeFunc func(data []byte) (*audio.Buffer, error)

	// PlayErr, when non-nil, is returned by Play.
	PlayErr error

	// CallCountSuspend and CallCountResume count Suspend and Resume calls.
	CallCountSuspend int
	CallCountResume  int
}

// New returns a running mock context at clock position zero.
func New(format audio.Format) *Context {
	return &Context{format: format}
}

// Now implements [audio.Context].
func (c *Context) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Format implements [audio.Context].
func (c *Context) Format() audio.Format { return c.format }

// Decode implements [audio.Context]. It uses DecodeFunc when set and
// [audio.Decode] otherwise, converting the result to the context format.
func (c *Context) Decode(data []byte) (*audio.Buffer, error) {
	c.mu.Lock()
	closed, fn := c.closed, c.DecodeFunc
	c.mu.Unlock()
	if closed {
		return nil, audio.ErrClosed
	}
	if fn == nil {
		fn = audio.Decode
	}
	buf, err := fn(data)
	if err != nil {
		return nil, err
	}
	return audio.Convert(buf, c.format), nil
}

// Play implements [audio.Context]. The returned playback is recorded and
// can be inspected through [Context.Plays].
func (c *Context) Play(buf *audio.Buffer) (audio.Playback, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, audio.ErrClosed
	}
	if c.PlayErr != nil {
		return nil, c.PlayErr
	}
	p := &Playback{Buffer: buf, StartedAt: c.now}
	c.plays = append(c.plays, p)
	return p, nil
}

// AfterFunc implements [audio.Context]. f runs synchronously inside the
// [Context.Advance] call that moves the clock past its deadline.
func (c *Context) AfterFunc(d time.Duration, f func()) audio.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &Timer{ctx: c, Deadline: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Suspend implements [audio.Context].
func (c *Context) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountSuspend++
	if c.closed {
		return audio.ErrClosed
	}
	c.suspended = true
	return nil
}

// Resume implements [audio.Context].
func (c *Context) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountResume++
	if c.closed {
		return audio.ErrClosed
	}
	c.suspended = false
	return nil
}

// Closed implements [audio.Context].
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close marks the context closed.
func (c *Context) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Suspended reports whether the context is suspended.
func (c *Context) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// Advance moves the clock forward by d unless the context is suspended, then
// fires every timer that is due, earliest first.
func (c *Context) Advance(d time.Duration) {
	c.mu.Lock()
	if !c.suspended {
		c.now += d
	}
	var due []*Timer
	c.timers = slices.DeleteFunc(c.timers, func(t *Timer) bool {
		if t.Deadline <= c.now {
			t.fired = true
			due = append(due, t)
			return true
		}
		return false
	})
	c.mu.Unlock()

	slices.SortStableFunc(due, func(a, b *Timer) int {
		return int(a.Deadline - b.Deadline)
	})
	for _, t := range due {
		t.f()
	}
}

// Plays returns every playback started so far, in order.
func (c *Context) Plays() []*Playback {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.plays)
}

// PendingTimers returns the number of timers that have neither fired nor
// been stopped.
func (c *Context) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Playback is a recorded [audio.Playback].
type Playback struct {
	mu sync.Mutex

	// Buffer is the buffer passed to Play.
	Buffer *audio.Buffer

	// StartedAt is the clock position when Play was called.
	StartedAt time.Duration

	stops int
}

// Stop implements [audio.Playback].
func (p *Playback) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

// Stopped reports whether Stop was called at least once.
func (p *Playback) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops > 0
}

// Timer is a recorded [audio.Timer].
type Timer struct {
	ctx *Context
	f   func()

	// Deadline is the clock position at which the timer fires.
	Deadline time.Duration

	fired   bool
	stopped bool
}

// Stop implements [audio.Timer].
func (t *Timer) Stop() bool {
	c := t.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	c.timers = slices.DeleteFunc(c.timers, func(o *Timer) bool { return o == t })
	return true
}
