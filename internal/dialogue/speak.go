package dialogue

import (
	"context"
	"sync"

	"github.com/MrWong99/emi/internal/animation"
	"github.com/MrWong99/emi/internal/effects"
	"github.com/MrWong99/emi/internal/game"
	"github.com/MrWong99/emi/internal/speech"
)

// line is one utterance together with the side effects bound to it.
type line struct {
	key  string // utterance key; empty for literal text
	text string

	start []effects.Effect
	end   []effects.Effect

	// onStart runs after the start effects, before the audio is audible.
	onStart func()
	// then runs after the end effects.
	then func()
}

func (l *line) label() string {
	if l.key != "" {
		return l.key
	}
	return l.text
}

// say speaks l, superseding whatever is in flight. The superseded line's
// end effects and continuation are dropped.
func (o *Orchestrator) say(l line) {
	o.stopWait()
	o.seq++
	seq := o.seq
	o.line = &l
	o.speaking = true
	o.utterance = l.label()

	h := o.speaker.Speak(o.ctx, speech.Request{
		Source:  o.source(&l),
		OnStart: func() { _ = o.call(context.Background(), func() { o.started(seq) }) },
		OnEnd:   func() { _ = o.call(context.Background(), func() { o.ended(seq) }) },
	})

	stop := make(chan struct{})
	o.stopWait = sync.OnceFunc(func() { close(stop) })
	go func() {
		select {
		case <-h.Done():
			if err := h.Err(); err != nil {
				_ = o.call(context.Background(), func() { o.failed(seq, err) })
			}
		case <-stop:
		case <-o.done:
		}
	}()
}

// source resolves l to a speech source according to the speech mode.
func (o *Orchestrator) source(l *line) speech.Source {
	if l.key == "" {
		return speech.Source{Text: l.text}
	}
	if o.mode == SpeakTTS {
		if text, ok := o.cur.Text(l.key); ok {
			return speech.Source{Text: text}
		}
	}
	return speech.Source{Key: l.key}
}

func (o *Orchestrator) started(seq uint64) {
	if seq != o.seq || o.line == nil {
		return
	}
	l := o.line
	o.dispatch(l.start...)
	if l.onStart != nil {
		l.onStart()
	}
}

func (o *Orchestrator) ended(seq uint64) {
	if seq != o.seq || o.line == nil {
		return
	}
	l := o.line
	o.clearLine()
	o.dispatch(l.end...)
	if l.then != nil {
		l.then()
	}
}

func (o *Orchestrator) failed(seq uint64, err error) {
	if seq != o.seq {
		return
	}
	o.log.Warn("dialogue: line abandoned after speech error", "utterance", o.utterance, "err", err)
	o.clearLine()
}

func (o *Orchestrator) clearLine() {
	o.stopWait()
	o.line = nil
	o.speaking = false
	o.utterance = ""
}

// stopSpeech stops the active line without running its end effects.
func (o *Orchestrator) stopSpeech() {
	o.seq++
	o.clearLine()
	o.speaker.Stop()
}

// dispatch applies side effects on the loop.
func (o *Orchestrator) dispatch(effs ...effects.Effect) {
	for _, e := range effs {
		o.metrics.RecordSideEffect(o.ctx, e.Kind.String())
		if e.Kind == effects.Unrecognized {
			o.log.Debug("dialogue: ignoring unrecognized side effect", "token", e.Token)
		}
		for _, fn := range o.effectObservers {
			fn(e)
		}
	}
	effects.Dispatch(handler{o}, effs...)
}

// handler applies side effects to the orchestrator. It is only used on the
// loop goroutine.
type handler struct{ o *Orchestrator }

var _ effects.Handler = handler{}

func (h handler) SetAnimation(c animation.Clip) { h.o.anim.SetAnimation(c) }

func (h handler) SetListening(on bool) { h.o.listening = on }

func (h handler) NextQuestion() { h.o.nextQuestion() }

func (h handler) MarkGreeted() { h.o.greeted = true }

func (h handler) Reset() { h.o.fullReset() }

func (h handler) IncrementFailures() { h.o.session.Fail() }

func (h handler) PlaySound(s effects.Sound) {
	if h.o.sounds == nil || h.o.session.Paused {
		return
	}
	h.o.sounds.Play(h.o.ctx, s)
}

func (h handler) SetFlow(f game.Flow) {
	if f == game.FlowGoodbye {
		h.o.goodbye()
		return
	}
	h.o.flow = f
}
