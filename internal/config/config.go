// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for the eMi avatar server.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the eMi server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level returns the matching [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SpeechMode selects how the avatar voices curriculum lines.
type SpeechMode string

const (
	// SpeechAssets plays pre-rendered audio and lip-sync assets by key.
	SpeechAssets SpeechMode = "assets"

	// SpeechTTS synthesizes every line through the TTS provider.
	SpeechTTS SpeechMode = "tts"
)

// IsValid reports whether m is a recognised speech mode.
func (m SpeechMode) IsValid() bool {
	return m == SpeechAssets || m == SpeechTTS
}

// Config is the root configuration structure for eMi.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Assets    AssetsConfig    `yaml:"assets"`
	Audio     AudioConfig     `yaml:"audio"`
	Lipsync   LipsyncConfig   `yaml:"lipsync"`
	Animation AnimationConfig `yaml:"animation"`
	Avatar    AvatarConfig    `yaml:"avatar"`
	Game      GameConfig      `yaml:"game"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists host patterns accepted for WebSocket connections
	// from other origins (e.g. "localhost:5173"). Same-origin requests are
	// always accepted.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AssetsConfig locates the pre-rendered utterances and sound cues.
type AssetsConfig struct {
	// Dir is the asset root.
	Dir string `yaml:"dir"`

	// AudioDir and LipsyncDir are resolved against Dir when relative.
	// Defaults: "audio" and "lipsync".
	AudioDir   string `yaml:"audio_dir"`
	LipsyncDir string `yaml:"lipsync_dir"`

	// AudioExtensions lists the containers tried per key, in order.
	// Default: [".ogg", ".wav"].
	AudioExtensions []string `yaml:"audio_extensions"`

	// WinSound and LoseSound are the answer cue files. Relative paths are
	// resolved against Dir. Empty leaves the cue silent.
	WinSound  string `yaml:"win_sound"`
	LoseSound string `yaml:"lose_sound"`
}

// AudioConfig describes the software audio output.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// FrameMS is the output frame length in milliseconds.
	FrameMS int `yaml:"frame_ms"`
}

// FrameDuration returns FrameMS as a duration.
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameMS) * time.Millisecond
}

// LipsyncConfig tunes the mouth-shape blending.
type LipsyncConfig struct {
	// FastSpeed is the per-frame lerp rate toward the active shape.
	FastSpeed float64 `yaml:"fast_speed"`

	// SlowSpeed is the per-frame lerp rate away from inactive shapes.
	SlowSpeed float64 `yaml:"slow_speed"`

	// Targets lists the morph targets present on the avatar model. Empty
	// means all of them.
	Targets []string `yaml:"targets"`
}

// AnimationConfig tunes clip cross-fades.
type AnimationConfig struct {
	// FadeSeconds is the cross-fade duration.
	FadeSeconds float64 `yaml:"fade_seconds"`

	// Weight is the influence of the requested clip, in (0, 1].
	Weight float64 `yaml:"weight"`
}

// Fade returns FadeSeconds as a duration.
func (a AnimationConfig) Fade() time.Duration {
	return time.Duration(a.FadeSeconds * float64(time.Second))
}

// AvatarConfig configures the render loop and the avatar's voice.
type AvatarConfig struct {
	// FPS is the pose render rate.
	FPS int `yaml:"fps"`

	// Voice is used whenever text is synthesized.
	Voice VoiceConfig `yaml:"voice"`
}

// VoiceConfig specifies the TTS voice parameters.
type VoiceConfig struct {
	// Provider is the TTS provider name the voice belongs to.
	Provider string `yaml:"provider"`

	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// SpeedFactor adjusts speaking rate in the range [0.7, 1.2]. 0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// GameConfig configures the dialogue and its content.
type GameConfig struct {
	// Content is a curriculum YAML file replacing the built-in one.
	Content string `yaml:"content"`

	// Rooms restricts the curriculum to these rooms, in this order.
	Rooms []string `yaml:"rooms"`

	// PhoneticFallback enables sound-alike answer matching.
	PhoneticFallback bool `yaml:"phonetic_fallback"`

	// Seed makes praise and help-phrase choices reproducible. 0 seeds
	// randomly.
	Seed uint64 `yaml:"seed"`

	// SpeechMode selects pre-rendered assets or live synthesis.
	SpeechMode SpeechMode `yaml:"speech_mode"`
}

// ProvidersConfig declares which provider implementation to use for speech
// synthesis and recognition. Each entry selects a named provider registered
// in the [Registry]. Both are optional.
type ProvidersConfig struct {
	TTS ProviderEntry `yaml:"tts"`
	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "elevenlabs", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-3").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// OptionString returns the string option key, or "" when unset.
func (e ProviderEntry) OptionString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptionFloat returns the numeric option key, or 0 when unset.
func (e ProviderEntry) OptionFloat(key string) float64 {
	switch v := e.Options[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return 0
}
