// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks to consumers and to verify
// which voice and text fragments reached the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeChunks: [][]byte{make([]byte, 3200)},
//	    AudioFormat:      audio.Format{SampleRate: 16000, Channels: 1},
//	}
//	buf, _ := tts.Synthesize(ctx, p, "Hello", tts.Voice{ID: "v1"})
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/emi/pkg/audio"
	"github.com/MrWong99/emi/pkg/provider/tts"
)

// SynthesizeStreamCall records a single invocation of SynthesizeStream.
type SynthesizeStreamCall struct {
	// Voice is the voice passed to SynthesizeStream.
	Voice tts.Voice
	// Text holds every fragment read from the text channel, in order. It is
	// complete once the returned audio channel has been closed.
	Text []string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeChunks is the sequence of audio byte slices emitted on the
	// channel returned by SynthesizeStream once the text channel is closed.
	SynthesizeChunks [][]byte

	// SynthesizeErr, if non-nil, is returned as the error from SynthesizeStream
	// instead of starting a channel.
	SynthesizeErr error

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.Voice

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// AudioFormat is returned by Format. Default: 16 kHz mono.
	AudioFormat audio.Format

	// --- Call records ---

	synthCalls []*SynthesizeStreamCall
	listCalls  int
}

var _ tts.Provider = (*Provider)(nil)

// SynthesizeStream records the call and, if SynthesizeErr is nil, returns a
// channel that emits SynthesizeChunks after the text channel is drained.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.Voice) (<-chan []byte, error) {
	call := &SynthesizeStreamCall{Voice: voice}
	p.mu.Lock()
	p.synthCalls = append(p.synthCalls, call)
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := slices.Clone(p.SynthesizeChunks)
	p.mu.Unlock()

	ch := make(chan []byte, len(chunks))
	go func() {
		defer close(ch)
		for fragment := range text {
			p.mu.Lock()
			call.Text = append(call.Text, fragment)
			p.mu.Unlock()
		}
		for _, chunk := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
		}
	}()
	return ch, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// Format returns AudioFormat, or 16 kHz mono when unset.
func (p *Provider) Format() audio.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.AudioFormat.Valid() {
		return audio.Format{SampleRate: 16000, Channels: 1}
	}
	return p.AudioFormat
}

// SynthesizeStreamCalls returns copies of every recorded SynthesizeStream
// call in order.
func (p *Provider) SynthesizeStreamCalls() []SynthesizeStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeStreamCall, len(p.synthCalls))
	for i, c := range p.synthCalls {
		out[i] = SynthesizeStreamCall{Voice: c.Voice, Text: slices.Clone(c.Text)}
	}
	return out
}

// ListVoicesCalls returns how often ListVoices was called.
func (p *Provider) ListVoicesCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.synthCalls = nil
	p.listCalls = 0
}
