package animation

import "fmt"

// Clip is one of the avatar's skeletal animation clips.
type Clip int

// The clip set of the avatar model.
const (
	Idle Clip = iota
	HappyIdle
	Laughing
	Listen
	SadIdle
	SadIdleKick
	BetterLuckNextTime
	Talking
	ThumbsUp
	ThumbsUpHappy
	WavingOneHand

	clipCount
)

var clipNames = [clipCount]struct{ id, model string }{
	Idle:               {"idle", "Idle"},
	HappyIdle:          {"happy_idle", "Happy Idle"},
	Laughing:           {"laughing", "Laughing"},
	Listen:             {"listen", "Listen"},
	SadIdle:            {"sad_idle", "Sad Idle"},
	SadIdleKick:        {"sad_idle_kick", "Sad Idle Kick"},
	BetterLuckNextTime: {"better_luck_next_time", "Sad_Better_Luck_Nect_Time"},
	Talking:            {"talking", "Talking"},
	ThumbsUp:           {"thumbs_up", "Thumbs_Up"},
	ThumbsUpHappy:      {"thumbs_up_happy", "Thumbs Up Happy"},
	WavingOneHand:      {"waving_one_hand", "Waving_One_Hand"},
}

// Clips returns every clip in declaration order.
func Clips() []Clip {
	out := make([]Clip, clipCount)
	for i := range out {
		out[i] = Clip(i)
	}
	return out
}

// ParseClip resolves a snake_case clip identifier such as "thumbs_up".
func ParseClip(s string) (Clip, bool) {
	for i, n := range clipNames {
		if n.id == s {
			return Clip(i), true
		}
	}
	return 0, false
}

// Valid reports whether c is a known clip.
func (c Clip) Valid() bool { return c >= 0 && c < clipCount }

// String returns the snake_case identifier used in side-effect tokens.
func (c Clip) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Clip(%d)", int(c))
	}
	return clipNames[c].id
}

// ModelName returns the name of the clip inside the avatar model file.
func (c Clip) ModelName() string {
	if !c.Valid() {
		return ""
	}
	return clipNames[c].model
}

// MarshalText implements [encoding.TextMarshaler].
func (c Clip) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("animation: invalid clip %d", int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (c *Clip) UnmarshalText(b []byte) error {
	v, ok := ParseClip(string(b))
	if !ok {
		return fmt.Errorf("animation: unknown clip %q", b)
	}
	*c = v
	return nil
}
