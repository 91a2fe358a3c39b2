package assets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/MrWong99/emi/internal/effects"
	"github.com/MrWong99/emi/pkg/audio"
)

// SoundsOption configures a [Sounds] player.
type SoundsOption func(*Sounds)

// WithSoundsLogger sets the logger.
func WithSoundsLogger(l *slog.Logger) SoundsOption {
	return func(s *Sounds) {
		s.log = l
	}
}

// Sounds plays the win and lose cues over whatever the avatar is saying. A
// cue requested while another one is still audible is dropped.
type Sounds struct {
	ac   audio.Context
	cues map[effects.Sound]*audio.Buffer
	log  *slog.Logger

	mu   sync.Mutex
	busy bool
}

// NewSounds returns a player for the given decoded cues. A nil buffer makes
// that cue silent.
func NewSounds(ac audio.Context, win, lose *audio.Buffer, opts ...SoundsOption) *Sounds {
	s := &Sounds{
		ac:   ac,
		cues: map[effects.Sound]*audio.Buffer{effects.Win: win, effects.Lose: lose},
		log:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// LoadSounds reads and decodes the cue files at winPath and losePath. An
// empty path leaves that cue silent.
func LoadSounds(ac audio.Context, winPath, losePath string, opts ...SoundsOption) (*Sounds, error) {
	win, err := decodeFile(ac, winPath)
	if err != nil {
		return nil, err
	}
	lose, err := decodeFile(ac, losePath)
	if err != nil {
		return nil, err
	}
	return NewSounds(ac, win, lose, opts...), nil
}

// Play starts cue s unless another cue is still playing.
func (s *Sounds) Play(ctx context.Context, cue effects.Sound) {
	buf := s.cues[cue]
	if buf == nil {
		return
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		s.log.DebugContext(ctx, "assets: sound dropped, another cue is playing", "sound", cue)
		return
	}
	s.busy = true
	s.mu.Unlock()

	if _, err := s.ac.Play(buf); err != nil {
		s.release()
		s.log.WarnContext(ctx, "assets: sound failed", "sound", cue, "err", err)
		return
	}
	s.ac.AfterFunc(buf.Duration(), s.release)
}

// Playing reports whether a cue is audible.
func (s *Sounds) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

func (s *Sounds) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

func decodeFile(ac audio.Context, path string) (*audio.Buffer, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("assets: read sound: %w", err)
	}
	buf, err := ac.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("assets: decode sound %s: %w", path, err)
	}
	return buf, nil
}
