package viseme

import (
	"strings"
	"time"
	"unicode"
)

// Estimation timings in seconds. Vowels hold longer than consonants and
// fricatives sit in between; punctuation inserts rests of increasing length.
const (
	leadIn        = 0.05
	consonantHold = 0.06
	fricativeHold = 0.08
	vowelHold     = 0.10
	wordGap       = 0.08
	clauseGap     = 0.10
	sentenceGap   = 0.15
	trailingRest  = 0.05
)

var letterSymbols = map[rune]string{
	'm': SymbolClosed, 'b': SymbolClosed, 'p': SymbolClosed,
	'f': SymbolDental, 'v': SymbolDental,
	'l': SymbolTongue,
	'a': SymbolWide,
	'e': SymbolOpen, 'h': SymbolOpen,
	'o': SymbolRounded, 'r': SymbolRounded,
	'u': SymbolPuckered, 'w': SymbolPuckered,
	'i': SymbolClenched, 'y': SymbolClenched,
}

// Estimate builds an approximate timeline for text when no aligned lip-sync
// asset exists, e.g. for speech synthesized on the fly. Letters are mapped
// to mouth shapes one by one (th, ch and sh count as one sound) and spaces
// and punctuation become rests.
//
// When duration is positive the result is stretched or squeezed so that its
// last frame ends at duration.
func Estimate(text string, duration time.Duration) *Timeline {
	text = strings.TrimSpace(strings.ToLower(text))
	if text == "" {
		return NewTimeline(nil)
	}

	var b timelineBuilder
	b.add(SymbolRest, leadIn)

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			b.add(SymbolRest, wordGap)
			continue
		case r == '.' || r == '!' || r == '?':
			b.add(SymbolRest, sentenceGap)
			continue
		case r == ',' || r == ';' || r == ':':
			b.add(SymbolRest, clauseGap)
			continue
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			continue
		}

		if i+1 < len(runes) && runes[i+1] == 'h' && (r == 't' || r == 'c' || r == 's') {
			b.add(SymbolClenched, consonantHold)
			i++
			continue
		}

		sym, ok := letterSymbols[r]
		if !ok {
			sym = SymbolClenched
		}
		hold := consonantHold
		switch r {
		case 'a', 'e', 'i', 'o', 'u':
			hold = vowelHold
		case 's', 'z', 'f', 'v':
			hold = fricativeHold
		}
		b.add(sym, hold)
	}
	b.add(SymbolRest, trailingRest)

	if duration > 0 && b.cursor > 0 {
		b.scale(duration.Seconds() / b.cursor)
	}
	return NewTimeline(b.frames)
}

// timelineBuilder appends contiguous frames, merging repeats of the same
// symbol into one longer frame.
type timelineBuilder struct {
	frames []Frame
	cursor float64
}

func (b *timelineBuilder) add(symbol string, hold float64) {
	end := b.cursor + hold
	if n := len(b.frames); n > 0 && b.frames[n-1].Value == symbol {
		b.frames[n-1].End = end
	} else {
		b.frames = append(b.frames, Frame{Start: b.cursor, End: end, Value: symbol})
	}
	b.cursor = end
}

func (b *timelineBuilder) scale(factor float64) {
	for i := range b.frames {
		b.frames[i].Start *= factor
		b.frames[i].End *= factor
	}
	b.cursor *= factor
}
