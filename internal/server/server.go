// Package server exposes the avatar over HTTP. Browser clients connect to
// /ws and exchange JSON envelopes (see [Envelope]) with the dialogue; state
// changes, pose frames, applied side effects and output audio are pushed to
// every connected client through a [Hub]. The same operations are available
// as plain HTTP endpoints under /api for kiosk controls and scripts.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/emi/internal/dialogue"
	"github.com/MrWong99/emi/internal/effects"
	"github.com/MrWong99/emi/internal/game"
	"github.com/MrWong99/emi/internal/health"
	"github.com/MrWong99/emi/internal/observe"
	"github.com/MrWong99/emi/pkg/provider/stt"
)

// Errors returned for rejected requests.
var (
	ErrBadMessage     = errors.New("server: bad message")
	ErrUnknownCommand = errors.New("server: unknown control command")
	ErrSTTDisabled    = errors.New("server: speech recognition not configured")
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Dialogue is the conversation the server drives.
// [*dialogue.Orchestrator] satisfies it.
type Dialogue interface {
	Transcript(ctx context.Context, text string) error
	Select(ctx context.Context, answer string) error
	Say(ctx context.Context, text string, start, end []effects.Effect) error
	Greet(ctx context.Context) error
	StartGame(ctx context.Context) error
	SetPaused(ctx context.Context, paused bool) error
	TogglePause(ctx context.Context) error
	JumpTo(ctx context.Context, room string) error
	ResetActivity(ctx context.Context) error
	Snapshot() dialogue.Snapshot
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithRegistry mounts /metrics over reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithSTT enables server-side speech recognition of binary microphone
// frames. Each client gets its own session, started on its first frame.
func WithSTT(p stt.Provider, cfg stt.StreamConfig) Option {
	return func(s *Server) {
		s.stt = p
		s.sttCfg = cfg
	}
}

// WithAllowedOrigins sets the host patterns accepted for cross-origin
// WebSocket connections. Same-origin connections are always accepted.
func WithAllowedOrigins(patterns []string) Option {
	return func(s *Server) {
		s.origins = patterns
	}
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server is the HTTP and WebSocket front end.
type Server struct {
	dlg      Dialogue
	hub      *Hub
	health   *health.Handler
	registry *prometheus.Registry
	stt      stt.Provider
	sttCfg   stt.StreamConfig
	origins  []string
	log      *slog.Logger
	metrics  *observe.Metrics
}

// New creates a Server for dlg that publishes through hub.
func New(dlg Dialogue, hub *Hub, opts ...Option) *Server {
	s := &Server{dlg: dlg, hub: hub}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the HTTP handler with all routes mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/control", s.handleControl)
	mux.HandleFunc("POST /api/speak", s.handleSpeak)
	mux.HandleFunc("POST /api/transcript", s.handleTranscript)
	mux.HandleFunc("POST /api/select", s.handleSelect)
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.registry != nil {
		mux.Handle("GET /metrics", observe.MetricsHandler(s.registry))
	}
	return observe.Middleware(s.metrics)(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. certFile and keyFile enable TLS when both are set.
func (s *Server) ListenAndServe(ctx context.Context, addr, certFile, keyFile string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Ends hijacked WebSocket connections on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server: listening", "addr", addr, "tls", certFile != "")
		var err error
		if certFile != "" && keyFile != "" {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// control applies a session command.
func (s *Server) control(ctx context.Context, p ControlPayload) error {
	switch p.Command {
	case CommandGreet:
		return s.dlg.Greet(ctx)
	case CommandStartGame:
		return s.dlg.StartGame(ctx)
	case CommandPause:
		return s.dlg.SetPaused(ctx, true)
	case CommandResume:
		return s.dlg.SetPaused(ctx, false)
	case CommandTogglePause:
		return s.dlg.TogglePause(ctx)
	case CommandJump:
		if p.Room == "" {
			return fmt.Errorf("%w: jump without room", ErrBadMessage)
		}
		return s.dlg.JumpTo(ctx, p.Room)
	case CommandReset:
		return s.dlg.ResetActivity(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, p.Command)
	}
}

func (s *Server) speak(ctx context.Context, p SpeakPayload) error {
	if p.Text == "" {
		return fmt.Errorf("%w: speak without text", ErrBadMessage)
	}
	return s.dlg.Say(ctx, p.Text, effects.ParseAll(p.SpeechActions.Start), effects.ParseAll(p.SpeechActions.End))
}

// ── HTTP endpoints ──────────────────────────────────────────────────────────

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dlg.Snapshot())
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	serveJSON(s, w, r, s.control)
}

func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	serveJSON(s, w, r, s.speak)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	serveJSON(s, w, r, func(ctx context.Context, p TranscriptPayload) error {
		return s.dlg.Transcript(ctx, p.Text)
	})
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	serveJSON(s, w, r, func(ctx context.Context, p SelectPayload) error {
		return s.dlg.Select(ctx, p.Answer)
	})
}

// serveJSON decodes the request body into T, applies fn and answers with
// the resulting dialogue state.
func serveJSON[T any](s *Server, w http.ResponseWriter, r *http.Request, fn func(context.Context, T) error) {
	var p T
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorPayload{Message: fmt.Sprintf("decode body: %v", err)})
		return
	}
	if err := fn(r.Context(), p); err != nil {
		observe.LoggerFrom(r.Context(), s.log).Warn("server: request rejected", "path", r.URL.Path, "err", err)
		writeJSON(w, statusFor(err), ErrorPayload{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.dlg.Snapshot())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadMessage), errors.Is(err, ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrUnknownRoom):
		return http.StatusNotFound
	case errors.Is(err, dialogue.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
