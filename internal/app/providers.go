package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/emi/internal/config"
	"github.com/MrWong99/emi/pkg/provider/stt"
	"github.com/MrWong99/emi/pkg/provider/stt/deepgram"
	"github.com/MrWong99/emi/pkg/provider/tts"
	"github.com/MrWong99/emi/pkg/provider/tts/elevenlabs"
)

// RegisterBuiltinProviders wires the provider factories that ship with eMi
// into reg.
func RegisterBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := entry.OptionString("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if rate := entry.OptionFloat("sample_rate"); rate > 0 {
			opts = append(opts, deepgram.WithSampleRate(int(rate)))
		}
		if ms := entry.OptionFloat("endpointing_ms"); ms > 0 {
			opts = append(opts, deepgram.WithEndpointing(time.Duration(ms)*time.Millisecond))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if outputFmt := entry.OptionString("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		stability, similarity := entry.OptionFloat("stability"), entry.OptionFloat("similarity_boost")
		if stability > 0 || similarity > 0 {
			opts = append(opts, elevenlabs.WithVoiceSettings(stability, similarity))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	for _, kind := range []string{"stt", "tts"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// BuildProviders instantiates the providers named in cfg. Unconfigured
// providers are left nil.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		ps.TTS = p
		slog.Info("provider created", "kind", "tts", "name", name, "format", p.Format())
	}

	return ps, nil
}

// Voice returns the TTS voice configured for the avatar.
func Voice(cfg config.AvatarConfig) tts.Voice {
	return tts.Voice{
		ID:       cfg.Voice.VoiceID,
		Provider: cfg.Voice.Provider,
		Speed:    cfg.Voice.SpeedFactor,
	}
}
