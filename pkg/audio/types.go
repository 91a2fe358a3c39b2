// Package audio holds the PCM primitives used for avatar speech: formats,
// decoded buffers, container decoding for the utterance assets (WAV and
// Ogg/Opus), format conversion, and the [Context] abstraction over an audio
// output with its own monotonic clock.
//
// All PCM in this package is signed 16-bit little-endian, interleaved by
// channel.
package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// Valid reports whether f describes playable audio.
func (f Format) Valid() bool { return f.SampleRate > 0 && f.Channels > 0 }

// FrameSize returns the number of bytes per sample frame (one sample for
// every channel).
func (f Format) FrameSize() int { return 2 * f.Channels }

// Duration returns how long n bytes of PCM in this format play for.
func (f Format) Duration(n int) time.Duration {
	if !f.Valid() {
		return 0
	}
	frames := int64(n / f.FrameSize())
	return time.Duration(frames * int64(time.Second) / int64(f.SampleRate))
}

// Bytes returns the byte length of d worth of PCM in this format, rounded
// down to a whole sample frame.
func (f Format) Bytes(d time.Duration) int {
	if !f.Valid() || d <= 0 {
		return 0
	}
	frames := int64(d) * int64(f.SampleRate) / int64(time.Second)
	return int(frames) * f.FrameSize()
}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Buffer is a fully decoded clip held in memory.
type Buffer struct {
	PCM    []byte
	Format Format
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b == nil {
		return 0
	}
	return b.Format.Duration(len(b.PCM))
}

// AudioFrame is one chunk of streamed PCM: microphone input on its way to
// speech-to-text, or mixed device output on its way to clients.
type AudioFrame struct {
	// PCM audio data.
	Data []byte

	// SampleRate in Hz (e.g. 48000 for device output, 16000 for STT input).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp is the position of the frame relative to stream start.
	Timestamp time.Duration
}

// Format returns the frame's format.
func (f AudioFrame) Format() Format {
	return Format{SampleRate: f.SampleRate, Channels: f.Channels}
}
