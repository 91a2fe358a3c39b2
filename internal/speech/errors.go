package speech

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad is matched by every [LoadError].
	ErrLoad = errors.New("speech: load failed")

	// ErrContextUnavailable is returned when there is no open audio context
	// to decode or play on. Playback stays impossible until a context is set
	// with [Engine.SetContext].
	ErrContextUnavailable = errors.New("speech: audio context unavailable")

	// ErrDecode is returned when loaded audio cannot be decoded.
	ErrDecode = errors.New("speech: decode failed")
)

// LoadError reports that the assets for an utterance could not be fetched or
// synthesized. errors.Is(err, ErrLoad) holds for every LoadError.
type LoadError struct {
	// Key is the utterance key, or the literal text for synthesized speech.
	Key string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("speech: load %q: %v", e.Key, e.Err)
}

// Unwrap exposes both ErrLoad and the underlying cause.
func (e *LoadError) Unwrap() []error {
	return []error{ErrLoad, e.Err}
}
