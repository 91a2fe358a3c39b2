// Package speech plays the avatar's utterances one at a time.
//
// An [Engine] loads the audio and viseme timeline of an utterance, attaches
// the timeline to the lip-sync scheduler, fires the request's OnStart hook,
// starts playback and schedules completion against the audio clock for
// exactly the decoded duration. Only one utterance is ever active: a new
// [Engine.Speak] stops and abandons the previous one before anything else
// happens.
//
// An abandoned utterance never settles. Its OnEnd hook does not run and its
// [Handle.Done] channel is never closed; callers that need to know use
// [Handle.Cancelled].
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/emi/internal/lipsync"
	"github.com/MrWong99/emi/internal/observe"
	"github.com/MrWong99/emi/pkg/audio"
	"github.com/MrWong99/emi/pkg/viseme"
)

// State is the playback state of an [Engine].
type State int

const (
	// Idle means nothing is loading or playing.
	Idle State = iota

	// Loading means an utterance is being fetched, synthesized or decoded.
	Loading

	// Playing means an utterance is audible.
	Playing
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Asset is the stored form of a keyed utterance.
type Asset struct {
	// Audio is the encoded clip (WAV or Ogg/Opus).
	Audio []byte

	// Timeline is the paired lip-sync timeline.
	Timeline *viseme.Timeline
}

// Loader fetches keyed utterances. Implementations fail when either the
// audio or the timeline is missing.
type Loader interface {
	Load(ctx context.Context, key string) (*Asset, error)
}

// Synthesizer turns literal text into audio and an estimated timeline.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*audio.Buffer, *viseme.Timeline, error)
}

// Source selects what to say. Exactly one field should be set; Key wins over
// Audio, which wins over Text.
type Source struct {
	// Key names a stored utterance: audio plus timeline.
	Key string

	// Audio is already decoded PCM played without a timeline, e.g. for
	// system sounds.
	Audio *audio.Buffer

	// Text is synthesized on the fly with an estimated timeline.
	Text string
}

// String returns a short description for logs.
func (s Source) String() string {
	switch {
	case s.Key != "":
		return s.Key
	case s.Audio != nil:
		return "<pcm>"
	}
	return fmt.Sprintf("text:%q", s.Text)
}

// Request is one speak call.
type Request struct {
	Source Source

	// OnStart runs after loading succeeded and before the audio starts.
	// Playback does not begin until it returns.
	OnStart func()

	// OnEnd runs once the full clip duration has elapsed on the audio clock.
	// It never runs for an abandoned or failed request.
	OnEnd func()
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithLoader sets the loader for keyed sources.
func WithLoader(l Loader) Option {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithSynthesizer sets the synthesizer for text sources.
func WithSynthesizer(s Synthesizer) Option {
	return func(e *Engine) {
		e.synth = s
	}
}

// WithLogger sets the engine logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine is the single-flight utterance player. All methods are safe for
// concurrent use.
type Engine struct {
	sched   *lipsync.Scheduler
	loader  Loader
	synth   Synthesizer
	log     *slog.Logger
	metrics *observe.Metrics

	mu         sync.Mutex
	ac         audio.Context
	current    *Handle
	state      State
	speaking   bool
	startClock time.Duration
	clockValid bool
	seq        atomic.Uint64
}

// New creates an Engine playing on ac and driving sched. ac may be nil, in
// which case every request fails with [ErrContextUnavailable] until
// [Engine.SetContext] is called.
func New(ac audio.Context, sched *lipsync.Scheduler, opts ...Option) *Engine {
	e := &Engine{ac: ac, sched: sched}
	for _, o := range opts {
		o(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Speak starts req and returns its handle without waiting for it. Any active
// utterance is stopped and abandoned synchronously before Speak returns.
func (e *Engine) Speak(ctx context.Context, req Request) *Handle {
	loadCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:     e.seq.Add(1),
		req:    req,
		done:   make(chan struct{}),
		cancel: cancel,
	}

	e.mu.Lock()
	e.abandonLocked()
	e.current = h
	e.state = Loading
	e.speaking = true
	e.clockValid = false
	e.mu.Unlock()

	go e.run(loadCtx, h)
	return h
}

// Stop stops and abandons the active utterance, if any.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.abandonLocked()
	e.state = Idle
	e.speaking = false
}

// abandonLocked stops the current utterance's audio and completion timer and
// marks it cancelled. Callers hold mu.
func (e *Engine) abandonLocked() {
	h := e.current
	if h == nil {
		return
	}
	e.current = nil
	h.cancelled.Store(true)
	h.cancel()
	if h.playback != nil {
		h.playback.Stop()
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	e.metrics.RecordUtterance(context.Background(), "cancelled")
	e.log.Debug("speech: utterance abandoned", "id", h.id, "source", h.req.Source.String())
}

func (e *Engine) run(ctx context.Context, h *Handle) {
	ctx, span := observe.StartSpan(ctx, "speech.speak",
		trace.WithAttributes(
			observe.AttrUtteranceKey.String(h.req.Source.String()),
			observe.AttrUtteranceID.Int64(int64(h.id)),
		),
	)
	defer span.End()
	log := observe.LoggerFrom(ctx, e.log).With("id", h.id, "source", h.req.Source.String())
	began := time.Now()

	e.mu.Lock()
	ac := e.ac
	e.mu.Unlock()
	if ac == nil || ac.Closed() {
		e.fail(ctx, h, span, ErrContextUnavailable)
		return
	}

	buf, tl, err := e.load(ctx, ac, h.req.Source)
	if err != nil {
		if h.Cancelled() {
			return
		}
		e.fail(ctx, h, span, err)
		return
	}

	e.mu.Lock()
	if e.current != h {
		e.mu.Unlock()
		return
	}
	e.sched.Attach(tl)
	e.mu.Unlock()

	if h.req.OnStart != nil {
		h.req.OnStart()
	}

	e.mu.Lock()
	if e.current != h {
		e.mu.Unlock()
		return
	}
	pb, err := ac.Play(buf)
	if err != nil {
		e.mu.Unlock()
		e.fail(ctx, h, span, fmt.Errorf("%w: %w", ErrContextUnavailable, err))
		return
	}
	dur := buf.Duration()
	e.startClock = ac.Now()
	e.clockValid = true
	e.state = Playing
	h.playback = pb
	h.timer = ac.AfterFunc(dur, func() { e.complete(ctx, h) })
	e.mu.Unlock()

	e.metrics.UtteranceLoadDuration.Record(ctx, time.Since(began).Seconds())
	log.Debug("speech: playing", "duration", dur, "visemes", tl.Len())
}

// load resolves src into playable PCM and an optional timeline.
func (e *Engine) load(ctx context.Context, ac audio.Context, src Source) (*audio.Buffer, *viseme.Timeline, error) {
	switch {
	case src.Key != "":
		if e.loader == nil {
			return nil, nil, &LoadError{Key: src.Key, Err: fmt.Errorf("no loader configured")}
		}
		asset, err := e.loader.Load(ctx, src.Key)
		if err != nil {
			return nil, nil, &LoadError{Key: src.Key, Err: err}
		}
		buf, err := ac.Decode(asset.Audio)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %w", ErrDecode, src.Key, err)
		}
		return buf, asset.Timeline, nil

	case src.Audio != nil:
		return src.Audio, nil, nil

	case src.Text != "":
		if e.synth == nil {
			return nil, nil, &LoadError{Key: src.Text, Err: fmt.Errorf("no synthesizer configured")}
		}
		buf, tl, err := e.synth.Synthesize(ctx, src.Text)
		if err != nil {
			return nil, nil, &LoadError{Key: src.Text, Err: err}
		}
		return buf, tl, nil
	}
	return nil, nil, &LoadError{Err: fmt.Errorf("empty source")}
}

func (e *Engine) complete(ctx context.Context, h *Handle) {
	e.mu.Lock()
	if e.current != h {
		e.mu.Unlock()
		return
	}
	e.current = nil
	e.state = Idle
	e.speaking = false
	e.mu.Unlock()

	e.metrics.RecordUtterance(ctx, "completed")
	if h.req.OnEnd != nil {
		h.req.OnEnd()
	}
	h.settle(nil)
}

func (e *Engine) fail(ctx context.Context, h *Handle, span trace.Span, err error) {
	e.mu.Lock()
	if e.current != h {
		e.mu.Unlock()
		return
	}
	e.current = nil
	e.state = Idle
	e.speaking = false
	e.mu.Unlock()

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.metrics.RecordUtterance(ctx, "failed")
	observe.LoggerFrom(ctx, e.log).Warn("speech: utterance failed",
		"id", h.id, "source", h.req.Source.String(), "err", err)
	h.settle(err)
}

// Speaking reports whether an utterance is loading or playing.
func (e *Engine) Speaking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speaking
}

// State returns the current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Elapsed returns the audio-clock time since the most recent utterance
// started playing. ok is false before the first playback and while a new
// request is loading. It keeps counting after the utterance ends, which
// leaves the scheduler resting on the final frame.
func (e *Engine) Elapsed() (seconds float64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.clockValid || e.ac == nil {
		return 0, false
	}
	return (e.ac.Now() - e.startClock).Seconds(), true
}

// Suspend freezes audio output and the audio clock.
func (e *Engine) Suspend() error {
	e.mu.Lock()
	ac := e.ac
	e.mu.Unlock()
	if ac == nil {
		return ErrContextUnavailable
	}
	return ac.Suspend()
}

// Resume restarts audio output and the audio clock.
func (e *Engine) Resume() error {
	e.mu.Lock()
	ac := e.ac
	e.mu.Unlock()
	if ac == nil {
		return ErrContextUnavailable
	}
	return ac.Resume()
}

// SetContext replaces the audio context, abandoning anything in flight on
// the old one.
func (e *Engine) SetContext(ac audio.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.abandonLocked()
	e.ac = ac
	e.state = Idle
	e.speaking = false
	e.clockValid = false
}

// Context returns the current audio context, which may be nil.
func (e *Engine) Context() audio.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ac
}

// Handle tracks one [Engine.Speak] call.
type Handle struct {
	id     uint64
	req    Request
	cancel context.CancelFunc

	// Guarded by the engine mutex.
	playback audio.Playback
	timer    audio.Timer

	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
	err       error
}

// ID returns the engine-unique request number.
func (h *Handle) ID() uint64 { return h.id }

// Done is closed when the utterance completed or failed. It is never closed
// for an abandoned utterance.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the failure after Done is closed, nil on success.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the utterance settles or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancelled reports whether a later request or [Engine.Stop] abandoned the
// utterance.
func (h *Handle) Cancelled() bool { return h.cancelled.Load() }

func (h *Handle) settle(err error) {
	h.once.Do(func() {
		h.err = err
		h.cancel()
		close(h.done)
	})
}
