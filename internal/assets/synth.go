package assets

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/emi/internal/observe"
	"github.com/MrWong99/emi/internal/speech"
	"github.com/MrWong99/emi/pkg/audio"
	"github.com/MrWong99/emi/pkg/provider/tts"
	"github.com/MrWong99/emi/pkg/viseme"
)

var _ speech.Synthesizer = (*Synthesizer)(nil)

// SynthOption configures a [Synthesizer].
type SynthOption func(*Synthesizer)

// WithSynthLogger sets the logger.
func WithSynthLogger(l *slog.Logger) SynthOption {
	return func(s *Synthesizer) {
		s.log = l
	}
}

// WithSynthMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithSynthMetrics(m *observe.Metrics) SynthOption {
	return func(s *Synthesizer) {
		s.metrics = m
	}
}

// Synthesizer voices literal text through a TTS provider and pairs the audio
// with a timeline estimated from the text.
type Synthesizer struct {
	provider tts.Provider
	voice    tts.Voice
	log      *slog.Logger
	metrics  *observe.Metrics
}

// NewSynthesizer returns a Synthesizer speaking with voice.
func NewSynthesizer(p tts.Provider, voice tts.Voice, opts ...SynthOption) *Synthesizer {
	s := &Synthesizer{
		provider: p,
		voice:    voice,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Synthesize returns the synthesized audio of text and its estimated
// timeline, stretched to the audio duration.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (*audio.Buffer, *viseme.Timeline, error) {
	ctx, span := observe.StartSpan(ctx, "assets.synthesize")
	defer span.End()
	span.SetAttributes(attribute.Int("emi.tts.chars", len(text)))

	start := time.Now()
	buf, err := tts.Synthesize(ctx, s.provider, text, s.voice)
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, fmt.Errorf("assets: synthesize: %w", err)
	}

	tl := viseme.Estimate(text, buf.Duration())
	observe.LoggerFrom(ctx, s.log).Debug("assets: synthesized",
		"chars", len(text),
		"duration", buf.Duration(),
		"visemes", tl.Len(),
		"latency", time.Since(start),
	)
	return buf, tl, nil
}
