// Package assets supplies the avatar's utterances and sound cues: a
// filesystem [Store] of pre-rendered audio and lip-sync timelines, a
// [Synthesizer] for literal text, and a [Sounds] player for the win and lose
// cues.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/emi/internal/speech"
	"github.com/MrWong99/emi/pkg/viseme"
)

// ErrNotFound is returned when the audio or the timeline of a key is missing.
var ErrNotFound = errors.New("assets: not found")

// ErrInvalidKey is returned for keys that could escape the asset directory.
var ErrInvalidKey = errors.New("assets: invalid key")

// DefaultExtensions lists the audio containers tried, in order.
var DefaultExtensions = []string{".ogg", ".wav"}

var _ speech.Loader = (*Store)(nil)

// StoreOption configures a [Store].
type StoreOption func(*Store)

// WithAudioDir sets the audio directory. Relative paths are resolved against
// the store root. Default: "audio".
func WithAudioDir(dir string) StoreOption {
	return func(s *Store) {
		if dir != "" {
			s.audioDir = dir
		}
	}
}

// WithLipsyncDir sets the timeline directory. Relative paths are resolved
// against the store root. Default: "lipsync".
func WithLipsyncDir(dir string) StoreOption {
	return func(s *Store) {
		if dir != "" {
			s.lipsyncDir = dir
		}
	}
}

// WithExtensions sets the audio file extensions tried, in order.
func WithExtensions(exts ...string) StoreOption {
	return func(s *Store) {
		if len(exts) == 0 {
			return
		}
		s.exts = make([]string, 0, len(exts))
		for _, e := range exts {
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			s.exts = append(s.exts, e)
		}
	}
}

// WithStoreLogger sets the logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		s.log = l
	}
}

// Store loads keyed utterances from disk. The audio of key lives at
// {root}/{audio dir}/{key}{ext} and its timeline at
// {root}/{lipsync dir}/{key}.json.
type Store struct {
	root       string
	audioDir   string
	lipsyncDir string
	exts       []string
	log        *slog.Logger
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string, opts ...StoreOption) *Store {
	s := &Store{
		root:       dir,
		audioDir:   "audio",
		lipsyncDir: "lipsync",
		exts:       DefaultExtensions,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if !filepath.IsAbs(s.audioDir) {
		s.audioDir = filepath.Join(s.root, s.audioDir)
	}
	if !filepath.IsAbs(s.lipsyncDir) {
		s.lipsyncDir = filepath.Join(s.root, s.lipsyncDir)
	}
	return s
}

// Load reads the audio and the timeline of key concurrently. It fails if
// either is missing.
func (s *Store) Load(ctx context.Context, key string) (*speech.Asset, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	var asset speech.Asset
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := s.readAudio(ctx, key)
		asset.Audio = data
		return err
	})
	g.Go(func() error {
		tl, err := s.readTimeline(ctx, key)
		asset.Timeline = tl
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &asset, nil
}

// Check reports whether both asset directories are readable.
func (s *Store) Check(context.Context) error {
	for _, dir := range []string{s.audioDir, s.lipsyncDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("assets: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("assets: %s is not a directory", dir)
		}
	}
	return nil
}

// Missing returns the keys whose audio or timeline cannot be found.
func (s *Store) Missing(keys []string) []string {
	var missing []string
	for _, k := range keys {
		if checkKey(k) != nil {
			missing = append(missing, k)
			continue
		}
		_, audioErr := s.audioPath(k)
		_, tlErr := os.Stat(s.timelinePath(k))
		if audioErr != nil || tlErr != nil {
			missing = append(missing, k)
		}
	}
	return missing
}

// AudioDir returns the resolved audio directory.
func (s *Store) AudioDir() string { return s.audioDir }

// LipsyncDir returns the resolved timeline directory.
func (s *Store) LipsyncDir() string { return s.lipsyncDir }

func (s *Store) readAudio(ctx context.Context, key string) ([]byte, error) {
	path, err := s.audioPath(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("assets: read audio %q: %w", key, err)
	}
	s.log.Debug("assets: audio loaded", "key", key, "path", path, "bytes", len(data))
	return data, nil
}

func (s *Store) readTimeline(ctx context.Context, key string) (*viseme.Timeline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.timelinePath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: timeline %q", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("assets: open timeline %q: %w", key, err)
	}
	defer f.Close()
	tl, err := viseme.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("assets: timeline %q: %w", key, err)
	}
	return tl, nil
}

// audioPath returns the first existing audio file for key.
func (s *Store) audioPath(key string) (string, error) {
	for _, ext := range s.exts {
		p := filepath.Join(s.audioDir, key+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: audio %q", ErrNotFound, key)
}

func (s *Store) timelinePath(key string) string {
	return filepath.Join(s.lipsyncDir, key+".json")
}

func checkKey(key string) error {
	if key == "" || key != filepath.Base(key) || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
