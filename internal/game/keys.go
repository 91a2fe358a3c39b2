package game

import (
	"fmt"
	"strconv"
	"strings"
)

// Utterance keys for the general lines.
const (
	KeyGreeting        = "general-greeting"
	KeyRefuseToPlay    = "general-refuse-to-play"
	KeyDidNotCatch     = "general-did-not-catch"
	KeyCongratulations = "general-congratulations"
	KeyLetsStart       = "general-lets-start"
	KeyPlayMore        = "general-play-more"
	KeyWrongAnswer     = "game-wrong-answer"
)

// PraiseKey returns the key of the i-th praise line.
func PraiseKey(i int) string { return "praise-" + strconv.Itoa(i) }

// IntroKey returns the key of a room's intro line.
func IntroKey(room string) string { return room + "-intro" }

// QuestionKey returns the key of a question prompt.
func QuestionKey(room, id string) string { return room + "-" + id }

// HelpKey returns the key of the i-th help phrase of a question.
func HelpKey(room, id string, i int) string {
	return fmt.Sprintf("%s-%s-%d-help-phrase", room, id, i)
}

// Text resolves an utterance key to the line it speaks.
func (c *Curriculum) Text(key string) (string, bool) {
	if key == KeyWrongAnswer {
		return c.General["wrong-answer"], true
	}
	if rest, ok := strings.CutPrefix(key, "general-"); ok {
		s, ok := c.General[rest]
		return s, ok
	}
	if rest, ok := strings.CutPrefix(key, "praise-"); ok {
		i, err := strconv.Atoi(rest)
		if err != nil || i < 0 || i >= len(c.Praise) {
			return "", false
		}
		return c.Praise[i], true
	}

	roomName, rest, ok := strings.Cut(key, "-")
	if !ok {
		return "", false
	}
	room, err := c.Room(roomName)
	if err != nil {
		return "", false
	}
	if rest == "intro" {
		return room.Intro, true
	}
	if h, ok := strings.CutSuffix(rest, "-help-phrase"); ok {
		id, idx, ok := strings.Cut(h, "-")
		if !ok {
			return "", false
		}
		q, ok := room.Question(id)
		i, err := strconv.Atoi(idx)
		if !ok || err != nil || i < 0 || i >= len(q.HelpPhrases) {
			return "", false
		}
		return q.HelpPhrases[i], true
	}
	q, ok := room.Question(rest)
	if !ok {
		return "", false
	}
	return q.Prompt, true
}

// Keys returns every utterance key the curriculum can speak. Sampled rooms
// contribute keys for all of their questions.
func (c *Curriculum) Keys() []string {
	keys := []string{
		KeyGreeting, KeyRefuseToPlay, KeyDidNotCatch, KeyCongratulations,
		KeyLetsStart, KeyPlayMore, KeyWrongAnswer,
	}
	for i := range c.Praise {
		keys = append(keys, PraiseKey(i))
	}
	for _, r := range c.Rooms {
		keys = append(keys, IntroKey(r.Name))
		for _, q := range r.Questions {
			keys = append(keys, QuestionKey(r.Name, q.ID))
			for i := range q.HelpPhrases {
				keys = append(keys, HelpKey(r.Name, q.ID, i))
			}
		}
	}
	return keys
}
