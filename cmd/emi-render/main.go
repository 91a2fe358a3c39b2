// Command emi-render synthesizes every line of the curriculum through the
// configured TTS provider and writes the pre-rendered assets the server
// plays in assets mode: audio/{key}.wav and lipsync/{key}.json.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/emi/internal/app"
	"github.com/MrWong99/emi/internal/assets"
	"github.com/MrWong99/emi/internal/config"
	"github.com/MrWong99/emi/internal/game"
	"github.com/MrWong99/emi/pkg/audio"
	"github.com/MrWong99/emi/pkg/viseme"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "emi.yaml", "path to the YAML configuration file")
	force := flag.Bool("force", false, "re-render lines whose assets already exist")
	parallel := flag.Int("parallel", 4, "number of lines synthesized concurrently")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "emi-render: %v\n", err)
		return 1
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Server.LogLevel.Level()})))

	if cfg.Providers.TTS.Name == "" {
		fmt.Fprintln(os.Stderr, "emi-render: providers.tts is required")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)
	provider, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		slog.Error("failed to create tts provider", "err", err)
		return 1
	}

	cur, err := app.LoadCurriculum(cfg.Game)
	if err != nil {
		slog.Error("failed to load curriculum", "err", err)
		return 1
	}

	r := &renderer{
		cur:   cur,
		store: app.NewStore(cfg.Assets),
		synth: assets.NewSynthesizer(provider, app.Voice(cfg.Avatar)),
	}
	n, err := r.render(ctx, *force, *parallel)
	if err != nil {
		slog.Error("render failed", "rendered", n, "err", err)
		return 1
	}
	slog.Info("render complete", "rendered", n, "audio_dir", r.store.AudioDir(), "lipsync_dir", r.store.LipsyncDir())
	return 0
}

// synthesizer is satisfied by [*assets.Synthesizer].
type synthesizer interface {
	Synthesize(ctx context.Context, text string) (*audio.Buffer, *viseme.Timeline, error)
}

type renderer struct {
	cur   *game.Curriculum
	store *assets.Store
	synth synthesizer
}

// render writes the assets of every line, or only of the missing ones when
// force is false. It returns the number of lines written.
func (r *renderer) render(ctx context.Context, force bool, parallel int) (int, error) {
	keys := r.cur.Keys()
	if !force {
		keys = r.store.Missing(keys)
	}
	if len(keys) == 0 {
		slog.Info("all lines already rendered")
		return 0, nil
	}
	for _, dir := range []string{r.store.AudioDir(), r.store.LipsyncDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	done := make(chan struct{}, len(keys))
	for _, key := range keys {
		g.Go(func() error {
			if err := r.renderKey(ctx, key); err != nil {
				return err
			}
			done <- struct{}{}
			return nil
		})
	}
	err := g.Wait()
	return len(done), err
}

func (r *renderer) renderKey(ctx context.Context, key string) error {
	text, ok := r.cur.Text(key)
	if !ok {
		return fmt.Errorf("%s: no text", key)
	}
	buf, tl, err := r.synth.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	var wav bytes.Buffer
	if err := audio.EncodeWAV(&wav, buf); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	audioFile := key + ".wav"
	if err := os.WriteFile(filepath.Join(r.store.AudioDir(), audioFile), wav.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%s: write audio: %w", key, err)
	}

	var cues bytes.Buffer
	if err := tl.Encode(&cues, audioFile); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := os.WriteFile(filepath.Join(r.store.LipsyncDir(), key+".json"), cues.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%s: write timeline: %w", key, err)
	}
	slog.Info("rendered", "key", key, "duration", buf.Duration(), "cues", tl.Len())
	return nil
}
