// Package avatar drives the avatar's per-frame pose: the mouth shapes from
// the lip-sync scheduler and the clip weights from the animation controller,
// both advanced in lock step with the audio clock of the speech engine.
package avatar

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/emi/internal/animation"
	"github.com/MrWong99/emi/internal/lipsync"
	"github.com/MrWong99/emi/pkg/viseme"
)

// DefaultFPS is the default render rate.
const DefaultFPS = 30

// Clock reports the audio time elapsed in the current utterance.
// [*speech.Engine] satisfies it.
type Clock interface {
	Elapsed() (seconds float64, ok bool)
}

// Pose is one rendered frame.
type Pose struct {
	Seq uint64 `json:"seq"`

	// Elapsed is the utterance time the frame was rendered for, in seconds.
	// It is only meaningful when Voiced is true.
	Elapsed float64 `json:"elapsed"`
	Voiced  bool    `json:"voiced"`

	// Viseme is the symbol of the active timeline frame and Shape the morph
	// target it maps to. Both are empty without a timeline.
	Viseme string `json:"viseme,omitempty"`
	Shape  string `json:"shape,omitempty"`

	// Shapes holds the weight of every morph target.
	Shapes map[string]float64 `json:"shapes"`

	Animation animation.Snapshot `json:"animation"`
}

// Option is a functional option for configuring a [Renderer].
type Option func(*Renderer)

// WithFPS sets the render rate. Values below 1 are ignored.
func WithFPS(fps int) Option {
	return func(r *Renderer) {
		if fps >= 1 {
			r.fps = fps
		}
	}
}

// WithObserver registers fn to receive every rendered [Pose]. fn runs on the
// render goroutine and must not block.
func WithObserver(fn func(Pose)) Option {
	return func(r *Renderer) {
		r.observers = append(r.observers, fn)
	}
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		r.log = l
	}
}

// Renderer produces a [Pose] on every tick.
type Renderer struct {
	clock     Clock
	sched     *lipsync.Scheduler
	anim      *animation.Controller
	fps       int
	observers []func(Pose)
	log       *slog.Logger

	mu   sync.Mutex
	seq  uint64
	last Pose
}

// New creates a Renderer over the given clock, scheduler and controller.
func New(clock Clock, sched *lipsync.Scheduler, anim *animation.Controller, opts ...Option) *Renderer {
	r := &Renderer{
		clock: clock,
		sched: sched,
		anim:  anim,
		fps:   DefaultFPS,
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Interval returns the time between two frames.
func (r *Renderer) Interval() time.Duration {
	return time.Second / time.Duration(r.fps)
}

// Run renders at the configured rate until ctx is cancelled.
func (r *Renderer) Run(ctx context.Context) error {
	interval := r.Interval()
	r.log.Info("avatar: renderer started", "fps", r.fps)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			r.log.Info("avatar: renderer stopped")
			return nil
		case now := <-ticker.C:
			r.Tick(now.Sub(last))
			last = now
		}
	}
}

// Tick renders one frame dt after the previous one and publishes it.
func (r *Renderer) Tick(dt time.Duration) Pose {
	p := Pose{}
	if elapsed, ok := r.clock.Elapsed(); ok {
		p.Elapsed, p.Voiced = elapsed, true
		if frame, ok := r.sched.Tick(elapsed); ok {
			p.Viseme = frame.Value
			p.Shape, _ = viseme.ShapeFor(frame.Value)
		}
	}
	p.Shapes = r.sched.Weights()
	r.anim.Advance(dt)
	p.Animation = r.anim.Snapshot()

	r.mu.Lock()
	r.seq++
	p.Seq = r.seq
	r.last = p
	r.mu.Unlock()

	for _, fn := range r.observers {
		fn(p)
	}
	return p
}

// Last returns the most recently rendered pose.
func (r *Renderer) Last() Pose {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
