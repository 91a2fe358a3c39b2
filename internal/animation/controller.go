// Package animation tracks which skeletal clip the avatar should be playing
// and cross-fades between clips.
//
// The [Controller] only does the bookkeeping: per-clip weight, fade
// progress and playback head. A renderer reads [Controller.Snapshot] every
// frame and applies it to the model.
package animation

import (
	"sync"
	"time"
)

const (
	// DefaultFade is the cross-fade duration between clips.
	DefaultFade = 500 * time.Millisecond

	// DefaultWeight is the influence of the requested clip once faded in.
	// It stays below 1 so the clip never fully overrides the base pose.
	DefaultWeight = 0.8
)

// Option is a functional option for configuring a [Controller].
type Option func(*Controller)

// WithFade sets the cross-fade duration.
func WithFade(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.fade = d
		}
	}
}

// WithWeight sets the target weight of the requested clip, in (0, 1].
func WithWeight(w float64) Option {
	return func(c *Controller) {
		if w > 0 && w <= 1 {
			c.weight = w
		}
	}
}

// track is the per-clip state.
type track struct {
	weight   float64       // current effective weight
	from, to float64       // fade endpoints
	fadeLeft time.Duration // remaining fade time; 0 when settled
	fadeDur  time.Duration
	head     time.Duration // playback position
}

// ClipState is one clip in a [Snapshot].
type ClipState struct {
	Clip   Clip          `json:"clip"`
	Model  string        `json:"model"`
	Weight float64       `json:"weight"`
	Head   time.Duration `json:"head"`
}

// Snapshot is the pose-relevant animation state at one instant. Clips with
// zero weight are omitted.
type Snapshot struct {
	Requested Clip        `json:"requested"`
	Paused    bool        `json:"paused"`
	Clips     []ClipState `json:"clips"`
}

// Controller holds the requested clip and the paused flag. All methods are
// safe for concurrent use.
type Controller struct {
	mu        sync.Mutex
	fade      time.Duration
	weight    float64
	requested Clip
	paused    bool
	tracks    [clipCount]track
}

// New creates a Controller playing [Idle] at full target weight.
func New(opts ...Option) *Controller {
	c := &Controller{fade: DefaultFade, weight: DefaultWeight}
	for _, o := range opts {
		o(c)
	}
	c.tracks[Idle] = track{weight: c.weight, from: c.weight, to: c.weight}
	return c
}

// SetAnimation requests clip. Requesting the clip that is already requested
// does nothing. Otherwise every other clip fades out, and clip restarts from
// its beginning and fades in to the target weight. There is no queue: a new
// request always interrupts.
func (c *Controller) SetAnimation(clip Clip) {
	if !clip.Valid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if clip == c.requested {
		return
	}
	c.requested = clip
	for i := range c.tracks {
		if Clip(i) == clip {
			continue
		}
		c.startFade(&c.tracks[i], 0)
	}
	t := &c.tracks[clip]
	t.head = 0
	t.weight = 0
	c.startFade(t, c.weight)
}

// SetPaused freezes or resumes the playback head of the requested clip.
// Fades keep progressing while paused.
func (c *Controller) SetPaused(paused bool) {
	c.mu.Lock()
	c.paused = paused
	c.mu.Unlock()
}

// SetFade changes the cross-fade duration for future requests.
func (c *Controller) SetFade(d time.Duration) {
	if d < 0 {
		return
	}
	c.mu.Lock()
	c.fade = d
	c.mu.Unlock()
}

// SetWeight changes the target weight for future requests.
func (c *Controller) SetWeight(w float64) {
	if w <= 0 || w > 1 {
		return
	}
	c.mu.Lock()
	c.weight = w
	c.mu.Unlock()
}

// Requested returns the requested clip.
func (c *Controller) Requested() Clip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requested
}

// Paused reports whether the requested clip is frozen.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Advance moves fades and playback heads forward by dt.
func (c *Controller) Advance(dt time.Duration) {
	if dt <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.tracks {
		t := &c.tracks[i]
		if t.fadeLeft > 0 {
			t.fadeLeft = max(0, t.fadeLeft-dt)
			progress := 1 - float64(t.fadeLeft)/float64(t.fadeDur)
			t.weight = t.from + (t.to-t.from)*progress
		}
		if t.weight == 0 && t.fadeLeft == 0 {
			continue
		}
		if Clip(i) == c.requested && c.paused {
			continue
		}
		t.head += dt
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{Requested: c.requested, Paused: c.paused}
	for i, t := range c.tracks {
		if t.weight == 0 {
			continue
		}
		clip := Clip(i)
		s.Clips = append(s.Clips, ClipState{Clip: clip, Model: clip.ModelName(), Weight: t.weight, Head: t.head})
	}
	return s
}

// startFade moves t toward target over the configured fade. Callers hold mu.
func (c *Controller) startFade(t *track, target float64) {
	if t.weight == target && t.fadeLeft == 0 {
		return
	}
	if c.fade == 0 {
		t.weight, t.from, t.to, t.fadeLeft = target, target, target, 0
		return
	}
	t.from, t.to = t.weight, target
	t.fadeDur, t.fadeLeft = c.fade, c.fade
}
