package app_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/emi/internal/app"
	"github.com/MrWong99/emi/internal/config"
)

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)

	if got := reg.Names("tts"); !slices.Equal(got, []string{"elevenlabs"}) {
		t.Errorf("tts providers = %v, want [elevenlabs]", got)
	}
	if got := reg.Names("stt"); !slices.Equal(got, []string{"deepgram"}) {
		t.Errorf("stt providers = %v, want [deepgram]", got)
	}
}

func TestBuildProviders_NoneConfigured(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)

	ps, err := app.BuildProviders(&config.Config{}, reg)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if ps.TTS != nil || ps.STT != nil {
		t.Errorf("providers = %+v, want none", ps)
	}
}

func TestBuildProviders_Unregistered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	cfg := &config.Config{}
	cfg.Providers.TTS.Name = "espeak"

	_, err := app.BuildProviders(cfg, reg)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestVoice(t *testing.T) {
	t.Parallel()

	var avatar config.AvatarConfig
	avatar.Voice = config.VoiceConfig{Provider: "elevenlabs", VoiceID: "emi-v1", SpeedFactor: 0.9}

	v := app.Voice(avatar)
	if v.ID != "emi-v1" || v.Provider != "elevenlabs" || v.Speed != 0.9 {
		t.Errorf("Voice = %+v", v)
	}
}
