package game

import "fmt"

// Flow is the conversational phase, which decides how a transcript is read.
type Flow int

const (
	// FlowWelcome waits for the player to agree to play.
	FlowWelcome Flow = iota
	// FlowGame evaluates transcripts as answers.
	FlowGame
	// FlowGoodbye is entered after congratulations and immediately resets.
	FlowGoodbye
)

var flowNames = [...]string{"welcome", "game", "goodbye"}

// String returns the lower-case flow name.
func (f Flow) String() string {
	if f < 0 || int(f) >= len(flowNames) {
		return fmt.Sprintf("Flow(%d)", int(f))
	}
	return flowNames[f]
}

// ParseFlow resolves a lower-case flow name.
func ParseFlow(s string) (Flow, bool) {
	for i, n := range flowNames {
		if n == s {
			return Flow(i), true
		}
	}
	return 0, false
}

// MarshalText implements [encoding.TextMarshaler].
func (f Flow) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements [encoding.TextUnmarshaler].
func (f *Flow) UnmarshalText(b []byte) error {
	v, ok := ParseFlow(string(b))
	if !ok {
		return fmt.Errorf("game: unknown flow %q", b)
	}
	*f = v
	return nil
}

// Session is one player's progress through the curriculum.
//
// Failures is reset to zero whenever Index changes, so every method that
// moves Index goes through [Session.SetIndex].
type Session struct {
	Room             string
	Index            int
	Failures         int
	ReadyForNextRoom bool
	Paused           bool
	Questions        []Question
}

// NewSession returns a session positioned at the start of room without any
// questions drawn.
func NewSession(room string) *Session {
	return &Session{Room: room}
}

// Enter moves the session into room with the questions drawn for this
// visit, at the first question.
func (s *Session) Enter(room string, questions []Question) {
	s.Room = room
	s.Questions = questions
	s.ReadyForNextRoom = false
	s.SetIndex(0)
}

// SetIndex moves to question i and clears the failure count.
func (s *Session) SetIndex(i int) {
	s.Index = i
	s.Failures = 0
}

// Advance moves to the next question. It reports false and leaves the
// session unchanged when the current question is the last one.
func (s *Session) Advance() bool {
	if s.Index+1 >= len(s.Questions) {
		return false
	}
	s.SetIndex(s.Index + 1)
	return true
}

// Fail records an incorrect attempt and returns the number of prior
// failures on the current question.
func (s *Session) Fail() int {
	prior := s.Failures
	s.Failures++
	return prior
}

// Current returns the current question.
func (s *Session) Current() (Question, bool) {
	if s.Index < 0 || s.Index >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.Index], true
}

// IsLastQuestion reports whether the current question is the last one drawn.
func (s *Session) IsLastQuestion() bool {
	return len(s.Questions) > 0 && s.Index == len(s.Questions)-1
}

// Reset returns the session to room with no questions drawn. The paused
// flag is left as is.
func (s *Session) Reset(room string) {
	s.Room = room
	s.Questions = nil
	s.ReadyForNextRoom = false
	s.SetIndex(0)
}
