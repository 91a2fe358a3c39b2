// Package app wires all eMi subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the dialogue loop, the render loop and the HTTP
// server, and Shutdown tears everything down in order.
//
// For testing, inject an audio context, metrics or a curriculum via
// functional options. When an option is not provided, New builds the real
// implementation from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/emi/internal/animation"
	"github.com/MrWong99/emi/internal/assets"
	"github.com/MrWong99/emi/internal/avatar"
	"github.com/MrWong99/emi/internal/config"
	"github.com/MrWong99/emi/internal/dialogue"
	"github.com/MrWong99/emi/internal/effects"
	"github.com/MrWong99/emi/internal/game"
	"github.com/MrWong99/emi/internal/health"
	"github.com/MrWong99/emi/internal/lipsync"
	"github.com/MrWong99/emi/internal/observe"
	"github.com/MrWong99/emi/internal/server"
	"github.com/MrWong99/emi/internal/speech"
	"github.com/MrWong99/emi/internal/transcript/phonetic"
	"github.com/MrWong99/emi/pkg/audio"
	"github.com/MrWong99/emi/pkg/provider/stt"
	"github.com/MrWong99/emi/pkg/provider/tts"
)

// defaultSTTSampleRate is the microphone rate clients are expected to send
// when the stt provider entry does not set options.sample_rate.
const defaultSTTSampleRate = 16000

// Providers holds the external services the application may use. Both are
// optional.
type Providers struct {
	TTS tts.Provider
	STT stt.Provider
}

// App owns every subsystem.
type App struct {
	cfg       *config.Config
	providers *Providers
	level     *slog.LevelVar
	registry  *prometheus.Registry
	metrics   *observe.Metrics

	ac       audio.Context
	sched    *lipsync.Scheduler
	speech   *speech.Engine
	anim     *animation.Controller
	store    *assets.Store
	sounds   *assets.Sounds
	cur      *game.Curriculum
	dlg      *dialogue.Orchestrator
	renderer *avatar.Renderer
	hub      *server.Hub
	server   *server.Server

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*App)

// WithAudioContext replaces the audio output device.
func WithAudioContext(ac audio.Context) Option {
	return func(a *App) {
		a.ac = ac
	}
}

// WithLevelVar lets [App.ApplyConfig] change the log level at runtime.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) {
		a.level = lv
	}
}

// WithRegistry mounts /metrics over reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *App) {
		a.registry = reg
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) {
		a.metrics = m
	}
}

// WithCurriculum replaces the curriculum named by game.content.
func WithCurriculum(c *game.Curriculum) Option {
	return func(a *App) {
		a.cur = c
	}
}

// New creates all subsystems from cfg. providers may be nil.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initCurriculum(); err != nil {
		return nil, err
	}
	a.initAudio()
	if err := a.initSpeech(); err != nil {
		return nil, err
	}
	a.initDialogue()
	a.initServer()
	return a, nil
}

func (a *App) initCurriculum() error {
	if a.cur == nil {
		cur, err := LoadCurriculum(a.cfg.Game)
		if err != nil {
			return err
		}
		a.cur = cur
	} else {
		cur, err := a.cur.Restrict(a.cfg.Game.Rooms)
		if err != nil {
			return fmt.Errorf("app: game.rooms: %w", err)
		}
		a.cur = cur
	}
	slog.Info("curriculum loaded", "rooms", a.cur.Names(), "lines", len(a.cur.Keys()))
	return nil
}

// LoadCurriculum returns the curriculum named by cfg.Content, or the
// built-in one, restricted to cfg.Rooms.
func LoadCurriculum(cfg config.GameConfig) (*game.Curriculum, error) {
	cur := game.Default()
	if cfg.Content != "" {
		var err error
		if cur, err = game.LoadFile(cfg.Content); err != nil {
			return nil, fmt.Errorf("app: load content: %w", err)
		}
	}
	cur, err := cur.Restrict(cfg.Rooms)
	if err != nil {
		return nil, fmt.Errorf("app: game.rooms: %w", err)
	}
	return cur, nil
}

func (a *App) initAudio() {
	if a.ac == nil {
		dev := audio.NewDevice(
			audio.WithFormat(audio.Format{SampleRate: a.cfg.Audio.SampleRate, Channels: a.cfg.Audio.Channels}),
			audio.WithFrameDuration(a.cfg.Audio.FrameDuration()),
		)
		a.ac = dev
		a.closers = append(a.closers, dev.Close)
	}

	schedOpts := []lipsync.Option{
		lipsync.WithSpeeds(a.cfg.Lipsync.FastSpeed, a.cfg.Lipsync.SlowSpeed),
		lipsync.WithMetrics(a.metrics),
	}
	if len(a.cfg.Lipsync.Targets) > 0 {
		schedOpts = append(schedOpts, lipsync.WithTargets(a.cfg.Lipsync.Targets))
	}
	a.sched = lipsync.New(schedOpts...)
	a.anim = animation.New(
		animation.WithFade(a.cfg.Animation.Fade()),
		animation.WithWeight(a.cfg.Animation.Weight),
	)
}

func (a *App) initSpeech() error {
	ac := a.cfg.Assets
	a.store = NewStore(ac)

	engineOpts := []speech.Option{
		speech.WithLoader(a.store),
		speech.WithMetrics(a.metrics),
	}
	if a.providers.TTS != nil {
		engineOpts = append(engineOpts, speech.WithSynthesizer(
			assets.NewSynthesizer(a.providers.TTS, Voice(a.cfg.Avatar), assets.WithSynthMetrics(a.metrics)),
		))
	}
	a.speech = speech.New(a.ac, a.sched, engineOpts...)

	if a.cfg.Game.SpeechMode == config.SpeechAssets {
		if missing := a.store.Missing(a.cur.Keys()); len(missing) > 0 {
			slog.Warn("utterance assets missing; these lines will be skipped",
				"count", len(missing),
				"first", missing[0],
				"audio_dir", a.store.AudioDir(),
			)
		}
	}

	if ac.WinSound != "" && ac.LoseSound != "" {
		sounds, err := assets.LoadSounds(a.ac, assetPath(ac.Dir, ac.WinSound), assetPath(ac.Dir, ac.LoseSound))
		if err != nil {
			return fmt.Errorf("app: load sound cues: %w", err)
		}
		a.sounds = sounds
	}
	return nil
}

func (a *App) initDialogue() {
	a.hub = server.NewHub(server.WithHubMetrics(a.metrics))

	opts := []dialogue.Option{
		dialogue.WithPhoneticMatcher(phonetic.New()),
		dialogue.WithSpeechMode(dialogue.SpeechMode(a.cfg.Game.SpeechMode)),
		dialogue.WithMetrics(a.metrics),
		dialogue.WithObserver(func(s dialogue.Snapshot) {
			a.hub.Broadcast(server.TypeState, s)
		}),
		dialogue.WithEffectObserver(func(e effects.Effect) {
			a.hub.Broadcast(server.TypeSpeechAction, server.SpeechActionPayload{Action: e.String()})
		}),
	}
	if a.cfg.Game.Seed != 0 {
		opts = append(opts, dialogue.WithSeed(a.cfg.Game.Seed))
	}
	if a.sounds != nil {
		opts = append(opts, dialogue.WithSounds(a.sounds))
	}
	a.dlg = dialogue.New(a.cur, a.speech, a.anim, opts...)
	a.dlg.SetPhoneticFallback(a.cfg.Game.PhoneticFallback)

	a.renderer = avatar.New(a.speech, a.sched, a.anim,
		avatar.WithFPS(a.cfg.Avatar.FPS),
		avatar.WithObserver(func(p avatar.Pose) {
			a.hub.Broadcast(server.TypePose, p)
		}),
	)

	if dev, ok := a.ac.(interface{ SetSink(audio.Sink) }); ok {
		dev.SetSink(func(f audio.AudioFrame) { a.hub.BroadcastAudio(f.Data) })
	}
}

func (a *App) initServer() {
	checkers := []health.Checker{health.Audio(a.ac), health.Dialogue(a.dlg)}
	if a.cfg.Game.SpeechMode == config.SpeechAssets {
		checkers = append(checkers, health.Assets(a.store))
	}

	opts := []server.Option{
		server.WithHealth(health.New(checkers...)),
		server.WithAllowedOrigins(a.cfg.Server.AllowedOrigins),
		server.WithMetrics(a.metrics),
	}
	if a.registry != nil {
		opts = append(opts, server.WithRegistry(a.registry))
	}
	if a.providers.STT != nil {
		rate := int(a.cfg.Providers.STT.OptionFloat("sample_rate"))
		if rate == 0 {
			rate = defaultSTTSampleRate
		}
		opts = append(opts, server.WithSTT(a.providers.STT, stt.StreamConfig{
			SampleRate: rate,
			Channels:   1,
			Language:   a.cfg.Providers.STT.OptionString("language"),
		}))
	}
	a.server = server.New(a.dlg, a.hub, opts...)
}

// NewStore builds the utterance store described by cfg.
func NewStore(cfg config.AssetsConfig, opts ...assets.StoreOption) *assets.Store {
	var storeOpts []assets.StoreOption
	if cfg.AudioDir != "" {
		storeOpts = append(storeOpts, assets.WithAudioDir(cfg.AudioDir))
	}
	if cfg.LipsyncDir != "" {
		storeOpts = append(storeOpts, assets.WithLipsyncDir(cfg.LipsyncDir))
	}
	if len(cfg.AudioExtensions) > 0 {
		storeOpts = append(storeOpts, assets.WithExtensions(cfg.AudioExtensions...))
	}
	return assets.NewStore(cfg.Dir, append(storeOpts, opts...)...)
}

// assetPath resolves p against dir unless it is absolute.
func assetPath(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Handler returns the HTTP handler served by [App.Run].
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Dialogue returns the dialogue orchestrator.
func (a *App) Dialogue() *dialogue.Orchestrator { return a.dlg }

// Run starts the dialogue loop, the render loop and the HTTP server and
// blocks until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.dlg.Run(ctx) })
	g.Go(func() error { return a.renderer.Run(ctx) })
	g.Go(func() error {
		var cert, key string
		if tls := a.cfg.Server.TLS; tls != nil {
			cert, key = tls.CertFile, tls.KeyFile
		}
		return a.server.ListenAndServe(ctx, a.cfg.Server.ListenAddr, cert, key)
	})

	slog.Info("app running", "listen_addr", a.cfg.Server.ListenAddr, "speech_mode", a.cfg.Game.SpeechMode)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ApplyConfig applies the hot-reloadable differences between old and new.
// Everything else is logged as requiring a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.LipsyncSpeedsChanged {
		a.sched.SetSpeeds(d.FastSpeed, d.SlowSpeed)
		slog.Info("lip-sync speeds changed", "fast", d.FastSpeed, "slow", d.SlowSpeed)
	}
	if d.AnimationChanged {
		a.anim.SetFade(d.Animation.Fade())
		a.anim.SetWeight(d.Animation.Weight)
		slog.Info("animation settings changed", "fade", d.Animation.Fade(), "weight", d.Animation.Weight)
	}
	if d.PhoneticFallbackChanged {
		a.dlg.SetPhoneticFallback(d.PhoneticFallback)
		slog.Info("phonetic fallback changed", "enabled", d.PhoneticFallback)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
	a.cfg = new
}

// Shutdown stops speech and closes the audio device.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.speech.Stop()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
