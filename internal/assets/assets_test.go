package assets_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/emi/internal/assets"
	"github.com/MrWong99/emi/internal/effects"
	"github.com/MrWong99/emi/internal/observe"
	"github.com/MrWong99/emi/pkg/audio"
	audiomock "github.com/MrWong99/emi/pkg/audio/mock"
	"github.com/MrWong99/emi/pkg/provider/tts"
	ttsmock "github.com/MrWong99/emi/pkg/provider/tts/mock"
	"github.com/MrWong99/emi/pkg/viseme"
)

var testFormat = audio.Format{SampleRate: 8000, Channels: 1}

func wavOf(t *testing.T, d time.Duration) []byte {
	t.Helper()
	var buf bytes.Buffer
	err := audio.EncodeWAV(&buf, &audio.Buffer{PCM: make([]byte, testFormat.Bytes(d)), Format: testFormat})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return buf.Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

const timelineJSON = `{"mouthCues":[{"start":0.3,"end":0.5,"value":"B"},{"start":0,"end":0.3,"value":"X"}]}`

// ── Store ───────────────────────────────────────────────────────────────────

func TestStore_Load(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	wav := wavOf(t, 500*time.Millisecond)
	writeFile(t, filepath.Join(dir, "audio", "general-greeting.wav"), wav)
	writeFile(t, filepath.Join(dir, "lipsync", "general-greeting.json"), []byte(timelineJSON))

	s := assets.NewStore(dir)
	a, err := s.Load(context.Background(), "general-greeting")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(a.Audio, wav) {
		t.Error("audio bytes differ from the file")
	}
	if a.Timeline.Len() != 2 || a.Timeline.At(0).Value != "X" {
		t.Errorf("timeline = %+v, want 2 frames ordered by start", a.Timeline.Frames())
	}
	if err := s.Check(context.Background()); err != nil {
		t.Errorf("Check: %v", err)
	}
}

func TestStore_PrefersFirstExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "audio", "praise-0.ogg"), []byte("OggS-first"))
	writeFile(t, filepath.Join(dir, "audio", "praise-0.wav"), wavOf(t, time.Second))
	writeFile(t, filepath.Join(dir, "lipsync", "praise-0.json"), []byte(timelineJSON))

	a, err := assets.NewStore(dir).Load(context.Background(), "praise-0")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(a.Audio) != "OggS-first" {
		t.Errorf("loaded %q, want the .ogg file", a.Audio[:4])
	}

	b, err := assets.NewStore(dir, assets.WithExtensions("wav")).Load(context.Background(), "praise-0")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.HasPrefix(b.Audio, []byte("RIFF")) {
		t.Error("WithExtensions(wav) did not load the .wav file")
	}
}

func TestStore_CustomDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	abs := filepath.Join(t.TempDir(), "cues")
	writeFile(t, filepath.Join(dir, "voice", "k.wav"), wavOf(t, time.Second))
	writeFile(t, filepath.Join(abs, "k.json"), []byte(timelineJSON))

	s := assets.NewStore(dir, assets.WithAudioDir("voice"), assets.WithLipsyncDir(abs))
	if s.AudioDir() != filepath.Join(dir, "voice") || s.LipsyncDir() != abs {
		t.Errorf("dirs = %q, %q", s.AudioDir(), s.LipsyncDir())
	}
	if _, err := s.Load(context.Background(), "k"); err != nil {
		t.Errorf("Load: %v", err)
	}
}

func TestStore_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "audio", "only-audio.wav"), wavOf(t, time.Second))
	writeFile(t, filepath.Join(dir, "lipsync", "only-timeline.json"), []byte(timelineJSON))
	writeFile(t, filepath.Join(dir, "audio", "broken.wav"), wavOf(t, time.Second))
	writeFile(t, filepath.Join(dir, "lipsync", "broken.json"), []byte(`{`))

	s := assets.NewStore(dir)
	tests := []struct {
		key  string
		want error
	}{
		{"only-audio", assets.ErrNotFound},
		{"only-timeline", assets.ErrNotFound},
		{"broken", viseme.ErrMalformed},
		{"../secret", assets.ErrInvalidKey},
		{"", assets.ErrInvalidKey},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()
			if _, err := s.Load(context.Background(), tt.key); !errors.Is(err, tt.want) {
				t.Errorf("Load(%q) err=%v, want %v", tt.key, err, tt.want)
			}
		})
	}

	got := s.Missing([]string{"only-audio", "only-timeline", "broken", "../x"})
	if !slices.Equal(got, []string{"only-audio", "only-timeline", "../x"}) {
		t.Errorf("Missing = %v", got)
	}
}

func TestStore_CheckMissingDir(t *testing.T) {
	t.Parallel()

	s := assets.NewStore(filepath.Join(t.TempDir(), "nope"))
	if err := s.Check(context.Background()); err == nil {
		t.Error("Check on a missing directory returned nil")
	}
}

// ── Synthesizer ─────────────────────────────────────────────────────────────

func TestSynthesizer(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	metrics, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	p := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{make([]byte, 16000)},
		AudioFormat:      audio.Format{SampleRate: 16000, Channels: 1},
	}
	s := assets.NewSynthesizer(p, tts.Voice{ID: "emi"}, assets.WithSynthMetrics(metrics))

	buf, tl, err := s.Synthesize(context.Background(), "Hello there!")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if buf.Duration() != 500*time.Millisecond {
		t.Errorf("duration=%v, want 500ms", buf.Duration())
	}
	if tl.Empty() {
		t.Fatal("estimated timeline is empty")
	}
	if end := tl.At(tl.Len() - 1).End; end < 0.49 || end > 0.51 {
		t.Errorf("timeline ends at %f, want ~0.5", end)
	}
	if calls := p.SynthesizeStreamCalls(); len(calls) != 1 || calls[0].Voice.ID != "emi" {
		t.Errorf("calls = %+v", calls)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "emi.tts.duration" {
				found = true
			}
		}
	}
	if !found {
		t.Error("emi.tts.duration not recorded")
	}
}

func TestSynthesizer_ProviderError(t *testing.T) {
	t.Parallel()

	p := &ttsmock.Provider{SynthesizeErr: errors.New("quota exceeded")}
	s := assets.NewSynthesizer(p, tts.Voice{ID: "emi"})
	if _, _, err := s.Synthesize(context.Background(), "Hi"); err == nil {
		t.Error("expected error")
	}
}

// ── Sounds ──────────────────────────────────────────────────────────────────

func TestSounds_DropsWhilePlaying(t *testing.T) {
	t.Parallel()

	ac := audiomock.New(testFormat)
	win := &audio.Buffer{PCM: make([]byte, testFormat.Bytes(time.Second)), Format: testFormat}
	lose := &audio.Buffer{PCM: make([]byte, testFormat.Bytes(2*time.Second)), Format: testFormat}
	s := assets.NewSounds(ac, win, lose)

	ctx := context.Background()
	s.Play(ctx, effects.Win)
	s.Play(ctx, effects.Lose)
	if n := len(ac.Plays()); n != 1 {
		t.Fatalf("plays=%d, want 1 (second cue dropped)", n)
	}
	if !s.Playing() {
		t.Error("Playing=false during the cue")
	}

	ac.Advance(time.Second)
	if s.Playing() {
		t.Error("Playing=true after the cue ended")
	}
	s.Play(ctx, effects.Lose)
	plays := ac.Plays()
	if len(plays) != 2 || plays[1].Buffer != lose {
		t.Errorf("plays=%d, want the lose cue second", len(plays))
	}
}

func TestSounds_SilentCue(t *testing.T) {
	t.Parallel()

	ac := audiomock.New(testFormat)
	s := assets.NewSounds(ac, nil, nil)
	s.Play(context.Background(), effects.Win)
	if len(ac.Plays()) != 0 || s.Playing() {
		t.Error("a missing cue should play nothing")
	}
}

func TestLoadSounds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	winPath := filepath.Join(dir, "win.wav")
	writeFile(t, winPath, wavOf(t, 250*time.Millisecond))

	ac := audiomock.New(testFormat)
	s, err := assets.LoadSounds(ac, winPath, "")
	if err != nil {
		t.Fatalf("LoadSounds: %v", err)
	}
	s.Play(context.Background(), effects.Win)
	if len(ac.Plays()) != 1 {
		t.Error("win cue did not play")
	}

	if _, err := assets.LoadSounds(ac, filepath.Join(dir, "missing.wav"), ""); err == nil {
		t.Error("expected error for a missing file")
	}
}
