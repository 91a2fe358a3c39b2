package audio

import "time"

// Context is an audio output with its own monotonic clock, modelled on a
// browser AudioContext. The clock only advances while the context is
// running: [Context.Suspend] freezes both the clock and every pending
// [Context.AfterFunc] timer, so time measured against it stays aligned with
// what has actually been heard.
//
// Implementations must be safe for concurrent use.
type Context interface {
	// Now returns the current position of the audio clock.
	Now() time.Duration

	// Format returns the output format. Buffers passed to Play are converted
	// to it.
	Format() Format

	// Decode decodes an encoded clip (WAV, Ogg/Opus) into the output format.
	Decode(data []byte) (*Buffer, error)

	// Play starts buf immediately, mixed over anything already playing.
	Play(buf *Buffer) (Playback, error)

	// AfterFunc calls f in its own goroutine once the audio clock has
	// advanced by d.
	AfterFunc(d time.Duration, f func()) Timer

	// Suspend pauses output and freezes the clock.
	Suspend() error

	// Resume restarts output and the clock after Suspend.
	Resume() error

	// Closed reports whether the context has been closed. A closed context
	// cannot play or decode.
	Closed() bool
}

// Playback is one playing source.
type Playback interface {
	// Stop silences the source. It is safe to call more than once and after
	// the source finished on its own.
	Stop()
}

// Timer is a pending [Context.AfterFunc] call.
type Timer interface {
	// Stop cancels the call. It returns false if the call already fired or
	// was already stopped.
	Stop() bool
}

// Sink receives mixed output frames from a [Device]. It is called from the
// device goroutine and must not block for long.
type Sink func(AudioFrame)
