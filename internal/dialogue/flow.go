package dialogue

import (
	"context"
	"fmt"

	"github.com/MrWong99/emi/internal/animation"
	"github.com/MrWong99/emi/internal/effects"
	"github.com/MrWong99/emi/internal/game"
)

// Shorthands for the side effects used by the built-in lines.
var (
	talk     = effects.Animate(animation.Talking)
	idle     = effects.Animate(animation.Idle)
	listen   = effects.Animate(animation.Listen)
	sad      = effects.Animate(animation.SadIdle)
	thumbsUp = effects.Animate(animation.ThumbsUp)
	cheer    = effects.Animate(animation.ThumbsUpHappy)
	wave     = effects.Animate(animation.WavingOneHand)

	startListening = effects.Action(effects.StartListening)
	stopListening  = effects.Action(effects.StopListening)
	winSound       = effects.Action(effects.PlayWinSound)
	loseSound      = effects.Action(effects.PlayLoseSound)
	nextQuestion   = effects.Action(effects.NextQuestion)
	markGreeted    = effects.Action(effects.MarkGreeted)
)

// Transcript delivers one committed speech-to-text result. It is evaluated
// only while the avatar is listening, silent and not paused; otherwise it
// is discarded.
func (o *Orchestrator) Transcript(ctx context.Context, text string) error {
	return o.call(ctx, func() { o.onTranscript(text) })
}

// Select delivers an answer picked in the UI for rooms that take
// selections. Selections made while the avatar speaks are discarded.
func (o *Orchestrator) Select(ctx context.Context, answer string) error {
	return o.call(ctx, func() { o.onSelect(answer) })
}

// Greet speaks the greeting and starts listening. It does nothing outside
// the welcome phase.
func (o *Orchestrator) Greet(ctx context.Context) error {
	return o.call(ctx, o.greet)
}

// StartGame announces the game and enters the current room, as if the
// player had agreed to play.
func (o *Orchestrator) StartGame(ctx context.Context) error {
	return o.call(ctx, o.startGame)
}

// SetPaused pauses or resumes the conversation. Pausing freezes speech
// output and animation and suppresses transcript evaluation in one step.
func (o *Orchestrator) SetPaused(ctx context.Context, paused bool) error {
	return o.call(ctx, func() { o.setPaused(paused) })
}

// TogglePause flips the paused state.
func (o *Orchestrator) TogglePause(ctx context.Context) error {
	return o.call(ctx, func() { o.setPaused(!o.session.Paused) })
}

// JumpTo enters room directly, speaking its intro and first question.
func (o *Orchestrator) JumpTo(ctx context.Context, room string) error {
	if _, err := o.cur.Room(room); err != nil {
		return fmt.Errorf("dialogue: jump: %w", err)
	}
	return o.call(ctx, func() { o.enterRoom(room) })
}

// ResetActivity restarts the current activity. In the game it replays the
// current room's intro and first question; in the welcome phase it clears
// the greeting and returns the avatar to idle.
func (o *Orchestrator) ResetActivity(ctx context.Context) error {
	return o.call(ctx, o.resetActivity)
}

// Say speaks text with the given side effects. When text is an utterance
// key known to the curriculum it is played as that utterance, otherwise it
// is synthesized.
func (o *Orchestrator) Say(ctx context.Context, text string, start, end []effects.Effect) error {
	l := line{start: start, end: end}
	if _, ok := o.cur.Text(text); ok {
		l.key = text
	} else {
		l.text = text
	}
	return o.call(ctx, func() { o.say(l) })
}

// Apply applies side effects immediately, outside of any utterance.
func (o *Orchestrator) Apply(ctx context.Context, effs ...effects.Effect) error {
	return o.call(ctx, func() { o.dispatch(effs...) })
}

// ── Loop-side handlers ──────────────────────────────────────────────────────

func (o *Orchestrator) onTranscript(text string) {
	disposition := "evaluated"
	switch {
	case o.session.Paused:
		disposition = "paused"
	case o.speaking:
		disposition = "speaking"
	case !o.listening:
		disposition = "not_listening"
	case o.flow == game.FlowWelcome:
		o.welcome(text)
	case o.flow == game.FlowGame:
		if o.currentRoom().Select() {
			disposition = "select_room"
			break
		}
		o.evaluate(text)
	default:
		disposition = "ignored"
	}
	o.metrics.RecordTranscript(o.ctx, disposition)
	o.log.Debug("dialogue: transcript", "text", text, "disposition", disposition, "flow", o.flow)
}

func (o *Orchestrator) onSelect(answer string) {
	if o.flow != game.FlowGame || o.session.Paused || o.speaking || !o.currentRoom().Select() {
		o.log.Debug("dialogue: selection discarded", "answer", answer)
		return
	}
	o.evaluate(answer)
}

func (o *Orchestrator) greet() {
	if o.flow != game.FlowWelcome {
		return
	}
	o.say(line{
		key:   game.KeyGreeting,
		start: []effects.Effect{wave},
		end:   []effects.Effect{listen, markGreeted, startListening},
	})
}

// welcome classifies a transcript in the welcome phase.
func (o *Orchestrator) welcome(text string) {
	switch {
	case o.cur.Agrees(text):
		o.startGame()
	case o.cur.Refuses(text):
		o.say(line{
			key:   game.KeyRefuseToPlay,
			start: []effects.Effect{talk},
			end:   []effects.Effect{idle, startListening},
		})
	default:
		o.say(line{
			key:   game.KeyDidNotCatch,
			start: []effects.Effect{talk},
			end:   []effects.Effect{idle, startListening},
		})
	}
}

func (o *Orchestrator) startGame() {
	if o.flow == game.FlowGame {
		return
	}
	room := o.session.Room
	o.listening = false
	o.say(line{
		key:   game.KeyLetsStart,
		start: []effects.Effect{talk},
		end:   []effects.Effect{idle},
		then:  func() { o.enterRoom(room) },
	})
}

// enterRoom draws the room's questions and speaks its intro followed by the
// first question. While paused the room is entered silently.
func (o *Orchestrator) enterRoom(name string) {
	room, err := o.cur.Room(name)
	if err != nil {
		o.log.Warn("dialogue: cannot enter room", "room", name, "err", err)
		return
	}
	questions := room.Draw(o.rng)
	enter := func() {
		o.flow = game.FlowGame
		o.session.Enter(name, questions)
	}
	o.listening = false
	if o.session.Paused {
		o.stopSpeech()
		enter()
		return
	}

	o.log.Info("dialogue: entering room", "room", name, "questions", len(questions))
	o.say(line{
		key:     game.IntroKey(name),
		start:   []effects.Effect{talk},
		onStart: enter,
		then:    o.ask,
	})
}

// ask speaks the current question.
func (o *Orchestrator) ask() {
	q, ok := o.session.Current()
	if !ok {
		return
	}
	end := []effects.Effect{listen, startListening}
	if o.currentRoom().Select() {
		end = []effects.Effect{idle}
	}
	o.say(line{
		key:   game.QuestionKey(o.session.Room, q.ID),
		start: []effects.Effect{talk},
		end:   end,
	})
}

func (o *Orchestrator) nextQuestion() {
	if !o.session.Advance() {
		return
	}
	o.ask()
}

// evaluate handles an answer in the game phase.
func (o *Orchestrator) evaluate(answer string) {
	room := o.currentRoom()
	lastRoom := o.cur.IsLast(room.Name)

	if o.session.ReadyForNextRoom && !lastRoom {
		if o.cur.Agrees(answer) {
			next, _ := o.cur.Next(room.Name)
			o.enterRoom(next.Name)
			return
		}
		o.listening = false
		o.say(line{
			key:   game.KeyRefuseToPlay,
			start: []effects.Effect{talk},
			end:   []effects.Effect{idle},
			then:  o.fullReset,
		})
		return
	}

	q, ok := o.session.Current()
	if !ok {
		return
	}
	correct := o.accepts(q, answer)
	o.metrics.RecordAnswer(o.ctx, room.Name, correct)
	o.log.Debug("dialogue: answer", "room", room.Name, "question", q.ID, "answer", answer, "correct", correct)

	if correct {
		switch {
		case o.session.IsLastQuestion() && lastRoom:
			o.say(line{
				key:   game.KeyCongratulations,
				start: []effects.Effect{cheer, stopListening},
				end:   []effects.Effect{idle},
				then:  o.goodbye,
			})
		case o.session.IsLastQuestion():
			o.say(line{
				key:   game.KeyPlayMore,
				start: []effects.Effect{talk, stopListening},
				end:   []effects.Effect{listen, startListening},
				then:  func() { o.session.ReadyForNextRoom = true },
			})
		default:
			o.say(line{
				key:   game.PraiseKey(o.rng.IntN(len(o.cur.Praise))),
				start: []effects.Effect{thumbsUp, winSound, stopListening},
				end:   []effects.Effect{idle, nextQuestion},
			})
		}
		return
	}

	if prior := o.session.Fail(); prior >= 1 {
		o.say(line{
			key:   game.HelpKey(room.Name, q.ID, o.rng.IntN(len(q.HelpPhrases))),
			start: []effects.Effect{sad, loseSound},
			end:   []effects.Effect{listen, startListening},
		})
		return
	}
	o.say(line{
		key:   game.KeyWrongAnswer,
		start: []effects.Effect{sad, loseSound},
		then:  o.ask,
	})
}

// accepts matches answer by substring first and then, if enabled, by sound.
func (o *Orchestrator) accepts(q game.Question, answer string) bool {
	if q.Accepts(answer) {
		return true
	}
	if !o.phonetic.Load() {
		return false
	}
	match, confidence, ok := o.matcher.Match(answer, q.Answers)
	if ok {
		o.log.Debug("dialogue: phonetic match", "answer", answer, "matched", match, "confidence", confidence)
	}
	return ok
}

func (o *Orchestrator) setPaused(paused bool) {
	if o.session.Paused == paused {
		return
	}
	o.session.Paused = paused
	o.listening = !paused
	o.anim.SetPaused(paused)

	var err error
	if paused {
		err = o.speaker.Suspend()
	} else {
		err = o.speaker.Resume()
	}
	if err != nil {
		o.log.Warn("dialogue: audio pause toggle failed", "paused", paused, "err", err)
	}
}

func (o *Orchestrator) resetActivity() {
	switch o.flow {
	case game.FlowGame:
		o.setPaused(false)
		if len(o.session.Questions) == 0 {
			return
		}
		o.listening = false
		o.say(line{
			key:   game.IntroKey(o.session.Room),
			start: []effects.Effect{talk},
			onStart: func() {
				o.session.ReadyForNextRoom = false
				o.session.SetIndex(0)
			},
			then: o.ask,
		})
	case game.FlowWelcome:
		o.stopSpeech()
		o.greeted = false
		o.listening = false
		o.anim.SetAnimation(animation.Idle)
	}
}

// goodbye ends the game and returns everything to the welcome phase.
func (o *Orchestrator) goodbye() {
	o.flow = game.FlowGoodbye
	o.log.Info("dialogue: game finished")
	o.fullReset()
}

// fullReset returns the session to the first room in the welcome phase.
func (o *Orchestrator) fullReset() {
	o.flow = game.FlowWelcome
	o.session.Reset(o.cur.First().Name)
	o.listening = false
	o.anim.SetAnimation(animation.Idle)
}

func (o *Orchestrator) currentRoom() *game.Room {
	room, err := o.cur.Room(o.session.Room)
	if err != nil {
		return o.cur.First()
	}
	return room
}
