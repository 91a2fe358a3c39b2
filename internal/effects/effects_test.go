package effects_test

import (
	"encoding/json"
	"fmt"
	"slices"
	"testing"

	"github.com/MrWong99/emi/internal/animation"
	"github.com/MrWong99/emi/internal/effects"
	"github.com/MrWong99/emi/internal/game"
)

type recorder struct {
	calls []string
}

func (r *recorder) SetAnimation(c animation.Clip) { r.calls = append(r.calls, "anim "+c.String()) }
func (r *recorder) SetListening(on bool)          { r.calls = append(r.calls, fmt.Sprint("listen ", on)) }
func (r *recorder) NextQuestion()                 { r.calls = append(r.calls, "next") }
func (r *recorder) MarkGreeted()                  { r.calls = append(r.calls, "greeted") }
func (r *recorder) Reset()                        { r.calls = append(r.calls, "reset") }
func (r *recorder) PlaySound(s effects.Sound)     { r.calls = append(r.calls, "sound "+s.String()) }
func (r *recorder) IncrementFailures()            { r.calls = append(r.calls, "fail") }
func (r *recorder) SetFlow(f game.Flow)           { r.calls = append(r.calls, "flow "+f.String()) }

var _ effects.Handler = (*recorder)(nil)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		token string
		want  effects.Effect
	}{
		{"animation:talking", effects.Animate(animation.Talking)},
		{"animation:better_luck_next_time", effects.Animate(animation.BetterLuckNextTime)},
		{"action:stop_listen", effects.Action(effects.StopListening)},
		{"action:listen", effects.Action(effects.StartListening)},
		{"action:next_question", effects.Action(effects.NextQuestion)},
		{"action:has_greeted", effects.Action(effects.MarkGreeted)},
		{"action:reset", effects.Action(effects.Reset)},
		{"action:play_win_sound", effects.Action(effects.PlayWinSound)},
		{"action:play_lose_sound", effects.Action(effects.PlayLoseSound)},
		{"action:increment_failure_count", effects.Action(effects.IncrementFailures)},
		{"action:set_flow_state|game", effects.Flow(game.FlowGame)},
		{" animation:idle ", effects.Animate(animation.Idle)},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			t.Parallel()
			if got := effects.Parse(tt.token); got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.token, got, tt.want)
			}
		})
	}
}

func TestParse_Unrecognized(t *testing.T) {
	t.Parallel()

	for _, tok := range []string{
		"", "animation", "animation:", "animation:moonwalk", "action:fly",
		"action:set_flow_state|lobby", "sound:win", "action:set_flow_state",
	} {
		e := effects.Parse(tok)
		if e.Kind != effects.Unrecognized {
			t.Errorf("Parse(%q).Kind = %v, want unrecognized", tok, e.Kind)
		}
		if e.Token != tok {
			t.Errorf("Parse(%q).Token = %q", tok, e.Token)
		}
	}
}

func TestEffect_StringRoundTrip(t *testing.T) {
	t.Parallel()

	for _, tok := range []string{
		"animation:thumbs_up", "action:listen", "action:reset",
		"action:set_flow_state|welcome", "action:increment_failure_count",
	} {
		if got := effects.Parse(tok).String(); got != tok {
			t.Errorf("String() = %q, want %q", got, tok)
		}
	}
}

func TestEffect_JSON(t *testing.T) {
	t.Parallel()

	var got []effects.Effect
	if err := json.Unmarshal([]byte(`["animation:listen","bogus"]`), &got); err != nil {
		t.Fatal(err)
	}
	if got[0] != effects.Animate(animation.Listen) || got[1].Kind != effects.Unrecognized {
		t.Errorf("unmarshal = %+v", got)
	}
	b, err := json.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `["animation:listen","bogus"]` {
		t.Errorf("marshal = %s", b)
	}
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	effects.Dispatch(r, effects.ParseAll([]string{
		"animation:sad_idle",
		"action:play_lose_sound",
		"what:ever",
		"action:increment_failure_count",
		"action:stop_listen",
		"action:listen",
		"action:next_question",
		"action:has_greeted",
		"action:play_win_sound",
		"action:set_flow_state|goodbye",
		"action:reset",
	})...)

	want := []string{
		"anim sad_idle", "sound lose", "fail", "listen false", "listen true",
		"next", "greeted", "sound win", "flow goodbye", "reset",
	}
	if !slices.Equal(r.calls, want) {
		t.Errorf("calls = %v\nwant    %v", r.calls, want)
	}
}
