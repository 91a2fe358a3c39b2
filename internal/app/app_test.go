package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/emi/internal/app"
	"github.com/MrWong99/emi/internal/config"
	"github.com/MrWong99/emi/internal/game"
	"github.com/MrWong99/emi/internal/observe"
	"github.com/MrWong99/emi/internal/server"
	"github.com/MrWong99/emi/pkg/audio"
	audiomock "github.com/MrWong99/emi/pkg/audio/mock"
	"github.com/MrWong99/emi/pkg/viseme"
)

var testFormat = audio.Format{SampleRate: 16000, Channels: 1}

// testConfig returns a defaulted config whose assets live in a temp dir
// holding the greeting line.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	writeUtterance(t, dir, game.KeyGreeting, 500*time.Millisecond)

	cfg := &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:0", LogLevel: config.LogInfo},
		Assets: config.AssetsConfig{Dir: dir},
		Game:   config.GameConfig{Seed: 7},
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func writeUtterance(t *testing.T, dir, key string, d time.Duration) {
	t.Helper()
	for _, sub := range []string{"audio", "lipsync"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	var wav bytes.Buffer
	buf := &audio.Buffer{PCM: make([]byte, testFormat.Bytes(d)), Format: testFormat}
	if err := audio.EncodeWAV(&wav, buf); err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "audio", key+".wav"), wav.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	var cues bytes.Buffer
	tl := viseme.NewTimeline([]viseme.Frame{
		{Start: 0, End: 0.2, Value: "B"},
		{Start: 0.2, End: d.Seconds(), Value: "X"},
	})
	if err := tl.Encode(&cues, key+".wav"); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "lipsync", key+".json"), cues.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// start builds and runs an App on a mock audio context.
func start(t *testing.T, cfg *config.Config, opts ...app.Option) (*app.App, *audiomock.Context) {
	t.Helper()
	ac := audiomock.New(testFormat)
	opts = append([]app.Option{app.WithAudioContext(ac), app.WithMetrics(testMetrics(t))}, opts...)
	a, err := app.New(cfg, nil, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after cancel")
		}
		_ = a.Shutdown(context.Background())
	})
	waitFor(t, "dialogue loop", a.Dialogue().Running)
	return a, ac
}

func TestApp_GreetingOverHTTP(t *testing.T) {
	t.Parallel()
	a, ac := start(t, testConfig(t))
	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	body, _ := json.Marshal(server.ControlPayload{Command: server.CommandGreet})
	resp, err := http.Post(ts.URL+"/api/control", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST control: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	waitFor(t, "greeting playback", func() bool { return len(ac.Plays()) == 1 })
	if s := a.Dialogue().Snapshot(); !s.Speaking || s.Utterance != game.KeyGreeting {
		t.Errorf("snapshot while speaking = %+v", s)
	}

	ac.Advance(600 * time.Millisecond)
	waitFor(t, "greeting end", func() bool {
		s := a.Dialogue().Snapshot()
		return s.Greeted && s.Listening && !s.Speaking
	})

	resp, err = http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", resp.StatusCode)
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	lv := new(slog.LevelVar)
	a, _ := start(t, cfg, app.WithLevelVar(lv))

	next := *cfg
	next.Server.LogLevel = config.LogDebug
	next.Lipsync.FastSpeed = 0.4
	next.Animation.Weight = 0.5
	next.Game.PhoneticFallback = true
	a.ApplyConfig(cfg, &next)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
}

func TestNew_RestrictsRooms(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Game.Rooms = []string{"bathroom"}

	a, err := app.New(cfg, nil, app.WithAudioContext(audiomock.New(testFormat)), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s := a.Dialogue().Snapshot(); s.Room != "bathroom" || s.Flow != game.FlowWelcome {
		t.Errorf("initial snapshot = %+v, want welcome in bathroom", s)
	}
}

func TestNew_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		modify func(*config.Config)
		want   string
	}{
		{"unknown room", func(c *config.Config) { c.Game.Rooms = []string{"attic"} }, "game.rooms"},
		{"missing content", func(c *config.Config) { c.Game.Content = "/nonexistent/game.yaml" }, "load content"},
		{"missing sounds", func(c *config.Config) {
			c.Assets.WinSound = "sounds/win.wav"
			c.Assets.LoseSound = "sounds/lose.wav"
		}, "sound cues"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			tt.modify(cfg)
			_, err := app.New(cfg, nil, app.WithAudioContext(audiomock.New(testFormat)), app.WithMetrics(testMetrics(t)))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}
