// Package game holds the question-and-answer content and the per-session
// progress through it.
//
// A [Curriculum] is the ordered list of [Room] values plus the shared lines
// (greeting, praise, agreement phrases). A [Session] tracks where one player
// currently is. Neither type is safe for concurrent use; the dialogue
// orchestrator owns both.
package game

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed content.yaml
var defaultContent string

// ErrUnknownRoom is returned when a room name is not part of the curriculum.
var ErrUnknownRoom = errors.New("game: unknown room")

// Required general lines, addressed by the suffix of their utterance key.
var requiredLines = []string{
	"greeting", "refuse-to-play", "did-not-catch", "congratulations",
	"lets-start", "play-more", "wrong-answer",
}

// Question is one prompt with the answers that satisfy it.
type Question struct {
	ID          string   `yaml:"id"`
	Prompt      string   `yaml:"prompt"`
	HelpPhrases []string `yaml:"help"`
	Answers     []string `yaml:"answers"`
}

// Accepts reports whether transcript contains any accepted answer, ignoring
// case. A question without answers accepts nothing.
func (q Question) Accepts(transcript string) bool {
	t := strings.ToLower(transcript)
	for _, a := range q.Answers {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" && strings.Contains(t, a) {
			return true
		}
	}
	return false
}

// InputMode is how a room receives answers.
type InputMode string

const (
	// InputVoice rooms are answered through transcribed speech.
	InputVoice InputMode = "voice"

	// InputSelect rooms are answered by a selection in the UI.
	InputSelect InputMode = "select"
)

// Generator produces one question per symbol. Prompt and help templates
// have "{symbol}" replaced by the symbol.
type Generator struct {
	Symbols string   `yaml:"symbols"`
	Sample  int      `yaml:"sample"`
	Prompt  string   `yaml:"prompt"`
	Help    []string `yaml:"help"`
}

// Room is one themed segment of the game.
type Room struct {
	Name      string     `yaml:"name"`
	Intro     string     `yaml:"intro"`
	Input     InputMode  `yaml:"input"`
	Questions []Question `yaml:"questions"`
	Generate  *Generator `yaml:"generate"`

	// Sample limits how many questions are drawn per visit. Zero means all
	// questions in their listed order.
	Sample int `yaml:"-"`
}

// Select reports whether answers come from a UI selection instead of speech.
func (r *Room) Select() bool { return r.Input == InputSelect }

// Question returns the question with the given id.
func (r *Room) Question(id string) (Question, bool) {
	i := slices.IndexFunc(r.Questions, func(q Question) bool { return q.ID == id })
	if i < 0 {
		return Question{}, false
	}
	return r.Questions[i], true
}

// Draw returns the questions for one visit of the room. Static rooms return
// every question in order; sampled rooms return a random subset of up to
// Sample questions in random order.
func (r *Room) Draw(rng *rand.Rand) []Question {
	qs := slices.Clone(r.Questions)
	if r.Sample <= 0 || rng == nil {
		return qs
	}
	rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	if len(qs) > r.Sample {
		qs = qs[:r.Sample]
	}
	return qs
}

// expand turns a generator into concrete questions.
func (r *Room) expand() {
	g := r.Generate
	if g == nil {
		return
	}
	for i, s := range strings.Split(g.Symbols, "") {
		fill := func(tmpl string) string { return strings.ReplaceAll(tmpl, "{symbol}", s) }
		q := Question{
			ID:      fmt.Sprintf("q%d", i+1),
			Prompt:  fill(g.Prompt),
			Answers: []string{s},
		}
		for _, h := range g.Help {
			q.HelpPhrases = append(q.HelpPhrases, fill(h))
		}
		r.Questions = append(r.Questions, q)
	}
	r.Sample = g.Sample
	r.Generate = nil
}

// Curriculum is the full game content.
type Curriculum struct {
	Agreement []string          `yaml:"agreement"`
	Refusal   []string          `yaml:"refusal"`
	Praise    []string          `yaml:"praise"`
	General   map[string]string `yaml:"general"`
	Rooms     []*Room           `yaml:"rooms"`
}

// Default returns the built-in curriculum.
func Default() *Curriculum {
	c, err := Load(strings.NewReader(defaultContent))
	if err != nil {
		panic(fmt.Sprintf("game: built-in content is invalid: %v", err))
	}
	return c
}

// LoadFile reads a curriculum from the YAML file at path.
func LoadFile(path string) (*Curriculum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("game: open %q: %w", path, err)
	}
	defer f.Close()

	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("game: parse %q: %w", path, err)
	}
	return c, nil
}

// Load decodes and validates a curriculum from r.
func Load(r io.Reader) (*Curriculum, error) {
	c := &Curriculum{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("game: decode yaml: %w", err)
	}
	for _, room := range c.Rooms {
		if room.Input == "" {
			room.Input = InputVoice
		}
		room.expand()
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate returns a joined error listing every problem in the content.
func (c *Curriculum) Validate() error {
	var errs []error
	if len(c.Agreement) == 0 {
		errs = append(errs, errors.New("agreement: at least one phrase is required"))
	}
	if len(c.Refusal) == 0 {
		errs = append(errs, errors.New("refusal: at least one phrase is required"))
	}
	if len(c.Praise) == 0 {
		errs = append(errs, errors.New("praise: at least one line is required"))
	}
	for _, k := range requiredLines {
		if strings.TrimSpace(c.General[k]) == "" {
			errs = append(errs, fmt.Errorf("general.%s is required", k))
		}
	}
	if len(c.Rooms) == 0 {
		errs = append(errs, errors.New("rooms: at least one room is required"))
	}

	seen := make(map[string]bool, len(c.Rooms))
	for i, r := range c.Rooms {
		prefix := fmt.Sprintf("rooms[%d]", i)
		switch {
		case r.Name == "":
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		case seen[r.Name]:
			errs = append(errs, fmt.Errorf("%s.name %q is duplicated", prefix, r.Name))
		case strings.ContainsAny(r.Name, " -"):
			errs = append(errs, fmt.Errorf("%s.name %q must not contain spaces or dashes", prefix, r.Name))
		}
		seen[r.Name] = true

		if r.Input != InputVoice && r.Input != InputSelect {
			errs = append(errs, fmt.Errorf("%s.input %q is invalid; valid values: voice, select", prefix, r.Input))
		}
		if strings.TrimSpace(r.Intro) == "" {
			errs = append(errs, fmt.Errorf("%s.intro is required", prefix))
		}
		if len(r.Questions) == 0 {
			errs = append(errs, fmt.Errorf("%s: at least one question is required", prefix))
		}
		ids := make(map[string]bool, len(r.Questions))
		for j, q := range r.Questions {
			qp := fmt.Sprintf("%s.questions[%d]", prefix, j)
			if q.ID == "" {
				errs = append(errs, fmt.Errorf("%s.id is required", qp))
			} else if ids[q.ID] {
				errs = append(errs, fmt.Errorf("%s.id %q is duplicated", qp, q.ID))
			}
			ids[q.ID] = true
			if strings.TrimSpace(q.Prompt) == "" {
				errs = append(errs, fmt.Errorf("%s.prompt is required", qp))
			}
			if len(q.Answers) == 0 {
				errs = append(errs, fmt.Errorf("%s: at least one answer is required", qp))
			}
			if len(q.HelpPhrases) == 0 {
				errs = append(errs, fmt.Errorf("%s: at least one help phrase is required", qp))
			}
		}
	}
	return errors.Join(errs...)
}

// Restrict returns a copy of c that plays only the named rooms, in the given
// order. An empty list returns c unchanged.
func (c *Curriculum) Restrict(names []string) (*Curriculum, error) {
	if len(names) == 0 {
		return c, nil
	}
	out := *c
	out.Rooms = make([]*Room, 0, len(names))
	for _, n := range names {
		r, err := c.Room(n)
		if err != nil {
			return nil, err
		}
		out.Rooms = append(out.Rooms, r)
	}
	return &out, nil
}

// Room returns the named room.
func (c *Curriculum) Room(name string) (*Room, error) {
	i := c.index(name)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoom, name)
	}
	return c.Rooms[i], nil
}

// First returns the first room in curriculum order.
func (c *Curriculum) First() *Room { return c.Rooms[0] }

// Next returns the room after name, or false if name is the last room.
func (c *Curriculum) Next(name string) (*Room, bool) {
	i := c.index(name)
	if i < 0 || i+1 >= len(c.Rooms) {
		return nil, false
	}
	return c.Rooms[i+1], true
}

// IsLast reports whether name is the final room.
func (c *Curriculum) IsLast(name string) bool {
	return len(c.Rooms) > 0 && c.Rooms[len(c.Rooms)-1].Name == name
}

// Names returns the room names in curriculum order.
func (c *Curriculum) Names() []string {
	out := make([]string, len(c.Rooms))
	for i, r := range c.Rooms {
		out[i] = r.Name
	}
	return out
}

// Agrees reports whether text contains an agreement phrase, ignoring case.
func (c *Curriculum) Agrees(text string) bool { return containsAny(text, c.Agreement) }

// Refuses reports whether text contains a refusal phrase, ignoring case.
func (c *Curriculum) Refuses(text string) bool { return containsAny(text, c.Refusal) }

func (c *Curriculum) index(name string) int {
	return slices.IndexFunc(c.Rooms, func(r *Room) bool { return r.Name == name })
}

func containsAny(text string, phrases []string) bool {
	t := strings.ToLower(text)
	return slices.ContainsFunc(phrases, func(p string) bool {
		return p != "" && strings.Contains(t, strings.ToLower(p))
	})
}
