// Package dialogue runs the conversation: it decides what the avatar says
// next based on transcribed speech and UI controls, tracks progress through
// the game and applies the side effects bound to each spoken line.
//
// All game state is owned by a single goroutine started with
// [Orchestrator.Run]. Every entry point, including the speech engine's
// OnStart and OnEnd hooks, is delivered to that goroutine as an event and
// returns once the event has been applied. Transcripts that arrive while the
// avatar is speaking or the conversation is paused are discarded, never
// queued.
package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/emi/internal/animation"
	"github.com/MrWong99/emi/internal/effects"
	"github.com/MrWong99/emi/internal/game"
	"github.com/MrWong99/emi/internal/observe"
	"github.com/MrWong99/emi/internal/speech"
	"github.com/MrWong99/emi/internal/transcript/phonetic"
)

// ErrStopped is returned by entry points once [Orchestrator.Run] has
// returned.
var ErrStopped = errors.New("dialogue: orchestrator stopped")

// ErrRunning is returned by [Orchestrator.Run] when the loop is already
// running.
var ErrRunning = errors.New("dialogue: orchestrator already running")

// Speaker plays utterances. [*speech.Engine] satisfies it.
type Speaker interface {
	Speak(ctx context.Context, req speech.Request) *speech.Handle
	Stop()
	Suspend() error
	Resume() error
}

// Animator receives clip requests. [*animation.Controller] satisfies it.
type Animator interface {
	SetAnimation(animation.Clip)
	SetPaused(bool)
}

// SoundPlayer plays the win and lose cues.
type SoundPlayer interface {
	Play(ctx context.Context, s effects.Sound)
}

// SpeechMode selects how lines are voiced.
type SpeechMode string

const (
	// SpeakAssets plays pre-rendered utterances by key.
	SpeakAssets SpeechMode = "assets"
	// SpeakTTS synthesizes every line from its text.
	SpeakTTS SpeechMode = "tts"
)

// Snapshot is the externally visible conversation state.
type Snapshot struct {
	Flow             game.Flow `json:"flow"`
	Room             string    `json:"room"`
	Question         string    `json:"question,omitempty"`
	Index            int       `json:"index"`
	Total            int       `json:"total"`
	Failures         int       `json:"failures"`
	ReadyForNextRoom bool      `json:"ready_for_next_room"`
	Paused           bool      `json:"paused"`
	Listening        bool      `json:"listening"`
	Greeted          bool      `json:"greeted"`
	Speaking         bool      `json:"speaking"`
	Utterance        string    `json:"utterance,omitempty"`
}

// Option is a functional option for configuring an [Orchestrator].
type Option func(*Orchestrator)

// WithSounds sets the win/lose cue player. Without one, cues are dropped.
func WithSounds(p SoundPlayer) Option {
	return func(o *Orchestrator) {
		o.sounds = p
	}
}

// WithSeed seeds the generator used for praise selection, help-phrase
// rotation and sampled rooms.
func WithSeed(seed uint64) Option {
	return func(o *Orchestrator) {
		o.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithPhoneticMatcher enables sound-alike answer matching as a fallback
// after exact substring matching fails.
func WithPhoneticMatcher(m *phonetic.Matcher) Option {
	return func(o *Orchestrator) {
		o.matcher = m
		o.phonetic.Store(m != nil)
	}
}

// WithSpeechMode sets how lines are voiced. Default: [SpeakAssets].
func WithSpeechMode(m SpeechMode) Option {
	return func(o *Orchestrator) {
		o.mode = m
	}
}

// WithObserver registers fn to receive every changed [Snapshot]. fn runs on
// the orchestrator goroutine and must not block or call back into the
// orchestrator.
func WithObserver(fn func(Snapshot)) Option {
	return func(o *Orchestrator) {
		o.observers = append(o.observers, fn)
	}
}

// WithEffectObserver registers fn to receive every side effect as it is
// applied. fn runs on the orchestrator goroutine and must not block.
func WithEffectObserver(fn func(effects.Effect)) Option {
	return func(o *Orchestrator) {
		o.effectObservers = append(o.effectObservers, fn)
	}
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// request is one event for the loop. done is closed after fn ran.
type request struct {
	fn   func()
	done chan struct{}
}

// Orchestrator is the dialogue state machine.
type Orchestrator struct {
	cur       *game.Curriculum
	speaker   Speaker
	anim      Animator
	sounds    SoundPlayer
	matcher   *phonetic.Matcher
	phonetic  atomic.Bool
	mode      SpeechMode
	observers []func(Snapshot)
	log       *slog.Logger
	metrics   *observe.Metrics

	effectObservers []func(effects.Effect)

	events  chan request
	done    chan struct{}
	running atomic.Bool

	snapMu sync.RWMutex
	snap   Snapshot

	// Owned by the loop goroutine.
	ctx       context.Context
	rng       *rand.Rand
	flow      game.Flow
	session   *game.Session
	listening bool
	greeted   bool
	speaking  bool
	utterance string
	seq       uint64
	line      *line
	stopWait  func()
}

// New creates an Orchestrator over the curriculum cur. Call
// [Orchestrator.Run] to start it.
func New(cur *game.Curriculum, speaker Speaker, anim Animator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cur:      cur,
		speaker:  speaker,
		anim:     anim,
		mode:     SpeakAssets,
		events:   make(chan request),
		done:     make(chan struct{}),
		session:  game.NewSession(cur.First().Name),
		stopWait: func() {},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	o.snap = o.snapshot()
	return o
}

// Run processes events until ctx is cancelled. Active speech is stopped on
// return. Run may be called only once.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(o.done)
	o.ctx = ctx
	o.log.Info("dialogue: orchestrator started", "rooms", o.cur.Names(), "mode", o.mode)

	for {
		select {
		case <-ctx.Done():
			o.stopSpeech()
			o.log.Info("dialogue: orchestrator stopped")
			return nil
		case req := <-o.events:
			req.fn()
			o.publish()
			close(req.done)
		}
	}
}

// Running reports whether the loop is processing events.
func (o *Orchestrator) Running() bool {
	if !o.running.Load() {
		return false
	}
	select {
	case <-o.done:
		return false
	default:
		return true
	}
}

// Snapshot returns the most recently published state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	return o.snap
}

// SetPhoneticFallback toggles sound-alike answer matching. It has no effect
// when the orchestrator was built without a matcher.
func (o *Orchestrator) SetPhoneticFallback(on bool) {
	o.phonetic.Store(on && o.matcher != nil)
}

// call runs fn on the loop and waits until it has been applied.
func (o *Orchestrator) call(ctx context.Context, fn func()) error {
	req := request{fn: fn, done: make(chan struct{})}
	select {
	case o.events <- req:
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-req.done:
		return nil
	case <-o.done:
		return ErrStopped
	}
}

// publish stores the current snapshot and notifies observers if it changed.
func (o *Orchestrator) publish() {
	s := o.snapshot()
	o.snapMu.Lock()
	changed := s != o.snap
	o.snap = s
	o.snapMu.Unlock()
	if !changed {
		return
	}
	for _, fn := range o.observers {
		fn(s)
	}
}

func (o *Orchestrator) snapshot() Snapshot {
	s := Snapshot{
		Flow:             o.flow,
		Room:             o.session.Room,
		Index:            o.session.Index,
		Total:            len(o.session.Questions),
		Failures:         o.session.Failures,
		ReadyForNextRoom: o.session.ReadyForNextRoom,
		Paused:           o.session.Paused,
		Listening:        o.listening,
		Greeted:          o.greeted,
		Speaking:         o.speaking,
		Utterance:        o.utterance,
	}
	if o.flow == game.FlowGame {
		if q, ok := o.session.Current(); ok {
			s.Question = q.ID
		}
	}
	return s
}
