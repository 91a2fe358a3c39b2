// Package effects defines the side effects a spoken line can trigger and
// the textual token protocol used to request them remotely.
//
// Tokens have the shape "category:value", for example "animation:talking",
// "action:next_question" or "action:set_flow_state|game". Parsing is total:
// a token that is not understood becomes an [Unrecognized] effect, which
// [Dispatch] ignores.
package effects

import (
	"fmt"
	"strings"

	"github.com/MrWong99/emi/internal/animation"
	"github.com/MrWong99/emi/internal/game"
)

// Kind enumerates the side effects.
type Kind int

const (
	Unrecognized Kind = iota
	SetAnimation
	StopListening
	StartListening
	NextQuestion
	MarkGreeted
	Reset
	PlayWinSound
	PlayLoseSound
	IncrementFailures
	SetFlow
)

var kindNames = [...]string{
	Unrecognized:      "unrecognized",
	SetAnimation:      "animation",
	StopListening:     "stop_listen",
	StartListening:    "listen",
	NextQuestion:      "next_question",
	MarkGreeted:       "has_greeted",
	Reset:             "reset",
	PlayWinSound:      "play_win_sound",
	PlayLoseSound:     "play_lose_sound",
	IncrementFailures: "increment_failure_count",
	SetFlow:           "set_flow_state",
}

// String returns the action name of k; it doubles as the metric label.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Sound identifies a result sound cue.
type Sound int

const (
	Win Sound = iota
	Lose
)

func (s Sound) String() string {
	if s == Win {
		return "win"
	}
	return "lose"
}

// Effect is one parsed side effect. Clip is set for [SetAnimation], Flow for
// [SetFlow] and Token for [Unrecognized].
type Effect struct {
	Kind  Kind
	Clip  animation.Clip
	Flow  game.Flow
	Token string
}

// Animate returns a [SetAnimation] effect.
func Animate(c animation.Clip) Effect { return Effect{Kind: SetAnimation, Clip: c} }

// Action returns an effect without arguments.
func Action(k Kind) Effect { return Effect{Kind: k} }

// Flow returns a [SetFlow] effect.
func Flow(f game.Flow) Effect { return Effect{Kind: SetFlow, Flow: f} }

// String returns the token form of e.
func (e Effect) String() string {
	switch e.Kind {
	case Unrecognized:
		return e.Token
	case SetAnimation:
		return "animation:" + e.Clip.String()
	case SetFlow:
		return "action:set_flow_state|" + e.Flow.String()
	default:
		return "action:" + e.Kind.String()
	}
}

// MarshalText implements [encoding.TextMarshaler] using the token form.
func (e Effect) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler]. It never fails.
func (e *Effect) UnmarshalText(b []byte) error {
	*e = Parse(string(b))
	return nil
}

// Parse converts a token into an [Effect].
func Parse(token string) Effect {
	unknown := Effect{Kind: Unrecognized, Token: token}
	category, value, ok := strings.Cut(strings.TrimSpace(token), ":")
	if !ok || value == "" {
		return unknown
	}
	switch category {
	case "animation":
		c, ok := animation.ParseClip(value)
		if !ok {
			return unknown
		}
		return Animate(c)
	case "action":
		if arg, ok := strings.CutPrefix(value, "set_flow_state|"); ok {
			f, ok := game.ParseFlow(arg)
			if !ok {
				return unknown
			}
			return Flow(f)
		}
		for k := StopListening; k <= IncrementFailures; k++ {
			if kindNames[k] == value {
				return Action(k)
			}
		}
	}
	return unknown
}

// ParseAll parses each token in order.
func ParseAll(tokens []string) []Effect {
	out := make([]Effect, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, Parse(t))
	}
	return out
}

// Handler applies side effects.
type Handler interface {
	SetAnimation(animation.Clip)
	SetListening(bool)
	NextQuestion()
	MarkGreeted()
	Reset()
	PlaySound(Sound)
	IncrementFailures()
	SetFlow(game.Flow)
}

// Dispatch applies effects to h in order. Unrecognized effects are skipped.
func Dispatch(h Handler, effects ...Effect) {
	for _, e := range effects {
		switch e.Kind {
		case SetAnimation:
			h.SetAnimation(e.Clip)
		case StopListening:
			h.SetListening(false)
		case StartListening:
			h.SetListening(true)
		case NextQuestion:
			h.NextQuestion()
		case MarkGreeted:
			h.MarkGreeted()
		case Reset:
			h.Reset()
		case PlayWinSound:
			h.PlaySound(Win)
		case PlayLoseSound:
			h.PlaySound(Lose)
		case IncrementFailures:
			h.IncrementFailures()
		case SetFlow:
			h.SetFlow(e.Flow)
		case Unrecognized:
		}
	}
}
