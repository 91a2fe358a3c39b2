// Package lipsync drives mouth-shape weights from a viseme timeline and the
// elapsed playback time of the utterance it belongs to.
//
// A [Scheduler] is fed once per render tick. It keeps a forward-only cursor
// into the attached [viseme.Timeline], so each tick costs amortised O(1)
// provided elapsed time does not go backwards within one utterance.
// Attaching a new timeline resets the cursor in the same critical section,
// which means a tick can never observe a cursor from the old timeline
// paired with the new one.
package lipsync

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/MrWong99/emi/internal/observe"
	"github.com/MrWong99/emi/pkg/viseme"
)

const (
	// DefaultFastSpeed is the per-tick lerp rate toward 1 for the active shape.
	DefaultFastSpeed = 0.2

	// DefaultSlowSpeed is the per-tick lerp rate toward 0 for inactive shapes.
	DefaultSlowSpeed = 0.1
)

// Option is a functional option for configuring a [Scheduler].
type Option func(*Scheduler)

// WithSpeeds sets the lerp rates. Values outside (0, 1] are ignored.
func WithSpeeds(fast, slow float64) Option {
	return func(s *Scheduler) {
		s.setSpeeds(fast, slow)
	}
}

// WithTargets restricts the shapes the avatar model actually has. A shape
// resolved from the timeline but missing here never gains weight and is
// reported once. When not set, every shape from [viseme.Shapes] is assumed
// present.
func WithTargets(targets []string) Option {
	return func(s *Scheduler) {
		s.targets = make(map[string]struct{}, len(targets))
		for _, t := range targets {
			s.targets[t] = struct{}{}
		}
	}
}

// WithLogger sets the logger used for missing-target warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.log = l
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// Scheduler maps elapsed utterance time onto the active viseme frame and
// blends per-shape weights toward it.
//
// All methods are safe for concurrent use.
type Scheduler struct {
	mu       sync.Mutex
	timeline *viseme.Timeline
	cursor   int
	fast     float64
	slow     float64
	weights  map[string]float64
	targets  map[string]struct{}
	missing  map[string]struct{}
	log      *slog.Logger
	metrics  *observe.Metrics
}

// New creates a Scheduler with no timeline attached.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		fast:    DefaultFastSpeed,
		slow:    DefaultSlowSpeed,
		missing: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.weights = make(map[string]float64)
	for _, shape := range viseme.Shapes() {
		if s.hasTarget(shape) {
			s.weights[shape] = 0
		}
	}
	return s
}

// Attach replaces the timeline and rewinds the cursor to the first frame.
// A nil or empty timeline turns [Scheduler.Tick] into a no-op.
func (s *Scheduler) Attach(tl *viseme.Timeline) {
	s.mu.Lock()
	s.timeline = tl
	s.cursor = 0
	s.mu.Unlock()
}

// Detach drops the current timeline. Weights keep their last values.
func (s *Scheduler) Detach() { s.Attach(nil) }

// SetSpeeds changes the lerp rates at runtime. Values outside (0, 1] are
// ignored.
func (s *Scheduler) SetSpeeds(fast, slow float64) {
	s.mu.Lock()
	s.setSpeeds(fast, slow)
	s.mu.Unlock()
}

func (s *Scheduler) setSpeeds(fast, slow float64) {
	if fast > 0 && fast <= 1 {
		s.fast = fast
	}
	if slow > 0 && slow <= 1 {
		s.slow = slow
	}
}

// Tick advances the cursor to elapsed (seconds since the utterance started)
// and moves every shape weight one step toward its target: 1 for the shape
// of the active frame, 0 for all others. It returns the active frame, or
// false when no timeline is attached.
//
// The cursor only moves forward. Passing a smaller elapsed than on a
// previous tick leaves it in place.
func (s *Scheduler) Tick(elapsed float64) (viseme.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.timeline.Len()
	if n == 0 {
		return viseme.Frame{}, false
	}
	for s.cursor < n-1 && elapsed >= s.timeline.At(s.cursor+1).Start {
		s.cursor++
	}
	frame := s.timeline.At(s.cursor)

	active, ok := viseme.ShapeFor(frame.Value)
	if ok && !s.hasTarget(active) {
		s.reportMissing(active)
		active = ""
	}
	for shape, w := range s.weights {
		if shape == active {
			s.weights[shape] = lerp(w, 1, s.fast)
		} else {
			s.weights[shape] = lerp(w, 0, s.slow)
		}
	}
	return frame, true
}

// Cursor returns the index of the active frame.
func (s *Scheduler) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Weights returns a copy of the current shape weights.
func (s *Scheduler) Weights() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.weights)
}

func (s *Scheduler) hasTarget(shape string) bool {
	if s.targets == nil {
		return true
	}
	_, ok := s.targets[shape]
	return ok
}

// reportMissing warns about shape the first time it is seen. Callers hold mu.
func (s *Scheduler) reportMissing(shape string) {
	if _, seen := s.missing[shape]; seen {
		return
	}
	s.missing[shape] = struct{}{}
	s.log.Warn("lipsync: morph target missing on avatar model", "target", shape)
	s.metrics.RecordMissingTarget(context.Background(), shape)
}

func lerp(from, to, rate float64) float64 {
	return from + (to-from)*rate
}
