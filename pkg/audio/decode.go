package audio

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedFormat is returned for containers or codecs that cannot
	// be decoded.
	ErrUnsupportedFormat = errors.New("audio: unsupported format")

	// ErrDecode is returned when a supported container is corrupt.
	ErrDecode = errors.New("audio: decode failed")

	// ErrClosed is returned by a [Context] after it has been closed.
	ErrClosed = errors.New("audio: context closed")
)

// Decode sniffs the container of data and decodes it into PCM. WAV and
// Ogg/Opus are supported.
func Decode(data []byte) (*Buffer, error) {
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return DecodeWAV(data)
	case bytes.HasPrefix(data, []byte("OggS")):
		return DecodeOggOpus(data)
	}
	n := min(len(data), 4)
	return nil, fmt.Errorf("%w: unknown container %q", ErrUnsupportedFormat, data[:n])
}
