package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/emi/pkg/audio"
)

// ErrNoAudio is returned by [Synthesize] when the provider closed its stream
// without emitting any audio.
var ErrNoAudio = errors.New("tts: provider returned no audio")

// Synthesize speaks text in one piece and collects the whole stream into a
// buffer in the provider's format.
func Synthesize(ctx context.Context, p Provider, text string, voice Voice) (*audio.Buffer, error) {
	in := make(chan string, 1)
	in <- text
	close(in)

	out, err := p.SynthesizeStream(ctx, in, voice)
	if err != nil {
		return nil, fmt.Errorf("tts: synthesize: %w", err)
	}

	var pcm []byte
collect:
	for {
		select {
		case <-ctx.Done():
			// The provider closes out once it notices the cancellation.
			go audio.Drain(out)
			return nil, fmt.Errorf("tts: synthesize: %w", ctx.Err())
		case chunk, ok := <-out:
			if !ok {
				break collect
			}
			pcm = append(pcm, chunk...)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tts: synthesize: %w", err)
	}
	format := p.Format()
	// Drop a trailing partial sample frame.
	if fs := format.FrameSize(); fs > 0 {
		pcm = pcm[:len(pcm)-len(pcm)%fs]
	}
	if len(pcm) == 0 {
		return nil, ErrNoAudio
	}
	return &audio.Buffer{PCM: pcm, Format: format}, nil
}
