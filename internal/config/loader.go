package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/emi/pkg/viseme"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram"},
	"tts": {"elevenlabs"},
}

// Defaults applied by [ApplyDefaults] to unset fields.
const (
	DefaultListenAddr  = ":8080"
	DefaultAssetsDir   = "assets"
	DefaultSampleRate  = 48000
	DefaultChannels    = 2
	DefaultFrameMS     = 20
	DefaultFastSpeed   = 0.2
	DefaultSlowSpeed   = 0.1
	DefaultFadeSeconds = 0.5
	DefaultWeight      = 0.8
	DefaultFPS         = 30
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. An empty document yields the default config.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse is [LoadFromReader] over a byte slice.
func parse(data []byte) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data))
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Assets.Dir == "" {
		cfg.Assets.Dir = DefaultAssetsDir
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = DefaultChannels
	}
	if cfg.Audio.FrameMS == 0 {
		cfg.Audio.FrameMS = DefaultFrameMS
	}
	if cfg.Lipsync.FastSpeed == 0 {
		cfg.Lipsync.FastSpeed = DefaultFastSpeed
	}
	if cfg.Lipsync.SlowSpeed == 0 {
		cfg.Lipsync.SlowSpeed = DefaultSlowSpeed
	}
	if cfg.Animation.FadeSeconds == 0 {
		cfg.Animation.FadeSeconds = DefaultFadeSeconds
	}
	if cfg.Animation.Weight == 0 {
		cfg.Animation.Weight = DefaultWeight
	}
	if cfg.Avatar.FPS == 0 {
		cfg.Avatar.FPS = DefaultFPS
	}
	if cfg.Avatar.Voice.Provider == "" {
		cfg.Avatar.Voice.Provider = cfg.Providers.TTS.Name
	}
	if cfg.Game.SpeechMode == "" {
		cfg.Game.SpeechMode = SpeechAssets
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Audio
	if cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [8000, 192000]", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	if cfg.Audio.FrameMS < 5 || cfg.Audio.FrameMS > 100 {
		errs = append(errs, fmt.Errorf("audio.frame_ms %d is out of range [5, 100]", cfg.Audio.FrameMS))
	}

	// Lip-sync
	if !inUnit(cfg.Lipsync.FastSpeed) {
		errs = append(errs, fmt.Errorf("lipsync.fast_speed %.2f is out of range (0, 1]", cfg.Lipsync.FastSpeed))
	}
	if !inUnit(cfg.Lipsync.SlowSpeed) {
		errs = append(errs, fmt.Errorf("lipsync.slow_speed %.2f is out of range (0, 1]", cfg.Lipsync.SlowSpeed))
	}
	shapes := viseme.Shapes()
	for _, target := range cfg.Lipsync.Targets {
		if !slices.Contains(shapes, target) {
			slog.Warn("lipsync target is not produced by any viseme and will stay at rest", "target", target, "known", shapes)
		}
	}

	// Animation
	if cfg.Animation.FadeSeconds < 0 {
		errs = append(errs, fmt.Errorf("animation.fade_seconds %.2f must not be negative", cfg.Animation.FadeSeconds))
	}
	if !inUnit(cfg.Animation.Weight) {
		errs = append(errs, fmt.Errorf("animation.weight %.2f is out of range (0, 1]", cfg.Animation.Weight))
	}

	// Avatar
	if cfg.Avatar.FPS < 1 || cfg.Avatar.FPS > 120 {
		errs = append(errs, fmt.Errorf("avatar.fps %d is out of range [1, 120]", cfg.Avatar.FPS))
	}
	if v := cfg.Avatar.Voice.SpeedFactor; v != 0 && (v < 0.7 || v > 1.2) {
		errs = append(errs, fmt.Errorf("avatar.voice.speed_factor %.2f is out of range [0.7, 1.2]", v))
	}

	// Game
	if !cfg.Game.SpeechMode.IsValid() {
		errs = append(errs, fmt.Errorf("game.speech_mode %q is invalid; valid values: assets, tts", cfg.Game.SpeechMode))
	}
	seen := make(map[string]int, len(cfg.Game.Rooms))
	for i, room := range cfg.Game.Rooms {
		if prev, ok := seen[room]; ok {
			errs = append(errs, fmt.Errorf("game.rooms[%d] %q is a duplicate of game.rooms[%d]", i, room, prev))
		}
		seen[room] = i
	}

	// Providers
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)

	if cfg.Game.SpeechMode == SpeechTTS && cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("game.speech_mode tts requires providers.tts"))
	}
	if cfg.Providers.TTS.Name != "" && cfg.Avatar.Voice.VoiceID == "" {
		errs = append(errs, errors.New("avatar.voice.voice_id is required when providers.tts is configured"))
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("providers.tts is not configured; literal text cannot be spoken")
	}
	if v := cfg.Avatar.Voice.Provider; v != "" && cfg.Providers.TTS.Name != "" && v != cfg.Providers.TTS.Name {
		slog.Warn("avatar voice provider does not match configured TTS provider",
			"voice_provider", v,
			"tts_provider", cfg.Providers.TTS.Name,
		)
	}

	return errors.Join(errs...)
}

func inUnit(v float64) bool { return v > 0 && v <= 1 }

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
