// Package viseme models lip-sync timelines: the ordered mouth-shape intervals
// of one utterance, the JSON asset format they are stored in, and the table
// that maps timeline symbols onto model morph targets.
//
// A [Timeline] is immutable once built. Consumers that need a different
// timeline build a new one and swap the pointer.
package viseme

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

// ErrMalformed is returned when a lip-sync asset cannot be decoded.
var ErrMalformed = errors.New("viseme: malformed timeline")

// Frame is one mouth-shape interval. Start and End are seconds relative to
// the start of the utterance audio.
type Frame struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Value string  `json:"value"`
}

// Timeline is an immutable, start-ordered sequence of [Frame] values for one
// utterance. The zero value and a nil *Timeline are both empty timelines.
//
// Frames are expected to partition time without gaps, but nothing relies on
// it: overlapping or gapped frames are kept as given.
type Timeline struct {
	frames []Frame
}

// NewTimeline copies frames and orders the copy by Start. Frames sharing a
// start time keep their relative order.
func NewTimeline(frames []Frame) *Timeline {
	fs := slices.Clone(frames)
	slices.SortStableFunc(fs, func(a, b Frame) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})
	return &Timeline{frames: fs}
}

// Len returns the number of frames.
func (t *Timeline) Len() int {
	if t == nil {
		return 0
	}
	return len(t.frames)
}

// Empty reports whether the timeline has no frames.
func (t *Timeline) Empty() bool { return t.Len() == 0 }

// At returns frame i. It panics if i is out of range, like a slice index.
func (t *Timeline) At(i int) Frame { return t.frames[i] }

// Frames returns a copy of all frames.
func (t *Timeline) Frames() []Frame {
	if t == nil {
		return nil
	}
	return slices.Clone(t.frames)
}

// Duration returns the largest End across all frames, in seconds.
func (t *Timeline) Duration() float64 {
	var d float64
	for i := range t.Len() {
		d = max(d, t.frames[i].End)
	}
	return d
}

// ── Asset format ────────────────────────────────────────────────────────────

// document is the on-disk lip-sync asset. Only mouthCues is required.
type document struct {
	Metadata  *metadata `json:"metadata,omitempty"`
	MouthCues []Frame   `json:"mouthCues"`
}

type metadata struct {
	SoundFile string  `json:"soundFile,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
}

// Parse decodes a lip-sync asset from data.
func Parse(data []byte) (*Timeline, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return NewTimeline(doc.MouthCues), nil
}

// Decode reads and decodes a lip-sync asset from r.
func Decode(r io.Reader) (*Timeline, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("viseme: read: %w", err)
	}
	return Parse(data)
}

// Encode writes t in the lip-sync asset format. soundFile is recorded in the
// metadata block when non-empty.
func (t *Timeline) Encode(w io.Writer, soundFile string) error {
	doc := document{
		Metadata:  &metadata{SoundFile: soundFile, Duration: t.Duration()},
		MouthCues: t.Frames(),
	}
	if doc.MouthCues == nil {
		doc.MouthCues = []Frame{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("viseme: encode: %w", err)
	}
	return nil
}
