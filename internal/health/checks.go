package health

import (
	"context"
	"errors"
)

// Errors reported by the built-in checkers.
var (
	ErrAudioClosed     = errors.New("audio device closed")
	ErrDialogueStopped = errors.New("dialogue loop not running")
)

// AssetChecker verifies that the asset directories are readable.
// [*assets.Store] satisfies it.
type AssetChecker interface {
	Check(ctx context.Context) error
}

// Assets reports whether the asset store is usable.
func Assets(s AssetChecker) Checker {
	return Checker{Name: "assets", Check: s.Check}
}

// Audio reports whether the output device is still open.
// [*audio.Device] satisfies the argument.
func Audio(d interface{ Closed() bool }) Checker {
	return Checker{Name: "audio", Check: func(context.Context) error {
		if d.Closed() {
			return ErrAudioClosed
		}
		return nil
	}}
}

// Dialogue reports whether the dialogue loop is processing events.
// [*dialogue.Orchestrator] satisfies the argument.
func Dialogue(o interface{ Running() bool }) Checker {
	return Checker{Name: "dialogue", Check: func(context.Context) error {
		if !o.Running() {
			return ErrDialogueStopped
		}
		return nil
	}}
}
