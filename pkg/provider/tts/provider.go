// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g. ElevenLabs) and
// presents a uniform streaming interface. The avatar uses it for lines that
// have no pre-rendered asset: literal text sent by a client, the whole
// curriculum when speaking in TTS mode, and offline rendering of assets.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/emi/pkg/audio"
)

// Voice describes a voice offered by a provider.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string `yaml:"id" json:"id"`

	// Name is the human-readable voice name.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Provider identifies which TTS provider this voice belongs to.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	// Speed adjusts the speaking rate (0.7–1.2, 0 = provider default).
	Speed float64 `yaml:"speed,omitempty" json:"speed,omitempty"`

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string `yaml:"-" json:"metadata,omitempty"`
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel that emits raw PCM chunks in [Provider.Format] as
	// they are synthesised.
	//
	// The returned audio channel is closed by the implementation when all
	// text has been synthesised or when ctx is cancelled. The caller must
	// drain the audio channel to avoid blocking the provider's internal
	// goroutines.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// encountered during synthesis are signalled by closing the audio channel
	// early; callers should check ctx.Err() to distinguish cancellation from
	// provider errors.
	SynthesizeStream(ctx context.Context, text <-chan string, voice Voice) (<-chan []byte, error)

	// ListVoices returns all voices available from this provider.
	ListVoices(ctx context.Context) ([]Voice, error)

	// Format reports the PCM format of the synthesised audio.
	Format() audio.Format
}
