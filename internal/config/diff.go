package config

import (
	"fmt"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// takes effect on restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	LipsyncSpeedsChanged bool
	FastSpeed            float64
	SlowSpeed            float64

	AnimationChanged bool
	Animation        AnimationConfig

	PhoneticFallbackChanged bool
	PhoneticFallback        bool

	// RestartRequired lists the sections that changed but cannot be applied
	// at runtime.
	RestartRequired []string
}

// Changed reports whether any hot-reloadable setting changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.LipsyncSpeedsChanged || d.AnimationChanged || d.PhoneticFallbackChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Lipsync.FastSpeed != new.Lipsync.FastSpeed || old.Lipsync.SlowSpeed != new.Lipsync.SlowSpeed {
		d.LipsyncSpeedsChanged = true
		d.FastSpeed = new.Lipsync.FastSpeed
		d.SlowSpeed = new.Lipsync.SlowSpeed
	}

	if old.Animation != new.Animation {
		d.AnimationChanged = true
		d.Animation = new.Animation
	}

	if old.Game.PhoneticFallback != new.Game.PhoneticFallback {
		d.PhoneticFallbackChanged = true
		d.PhoneticFallback = new.Game.PhoneticFallback
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || !slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) ||
		!equalTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Assets.Dir != new.Assets.Dir || old.Assets.AudioDir != new.Assets.AudioDir ||
		old.Assets.LipsyncDir != new.Assets.LipsyncDir || old.Assets.WinSound != new.Assets.WinSound ||
		old.Assets.LoseSound != new.Assets.LoseSound || !slices.Equal(old.Assets.AudioExtensions, new.Assets.AudioExtensions) {
		d.RestartRequired = append(d.RestartRequired, "assets")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if !slices.Equal(old.Lipsync.Targets, new.Lipsync.Targets) {
		d.RestartRequired = append(d.RestartRequired, "lipsync.targets")
	}
	if old.Avatar != new.Avatar {
		d.RestartRequired = append(d.RestartRequired, "avatar")
	}
	if old.Game.Content != new.Game.Content || old.Game.Seed != new.Game.Seed ||
		old.Game.SpeechMode != new.Game.SpeechMode || !slices.Equal(old.Game.Rooms, new.Game.Rooms) {
		d.RestartRequired = append(d.RestartRequired, "game")
	}
	if !equalEntry(old.Providers.TTS, new.Providers.TTS) || !equalEntry(old.Providers.STT, new.Providers.STT) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}

	return d
}

func equalTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// equalEntry compares the scalar fields of two provider entries. Option
// maps are compared by key set and string form of each value.
func equalEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || !equalOption(v, w) {
			return false
		}
	}
	return true
}

func equalOption(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
