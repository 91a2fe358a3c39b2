package main

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/emi/internal/assets"
	"github.com/MrWong99/emi/internal/game"
	"github.com/MrWong99/emi/pkg/audio"
	"github.com/MrWong99/emi/pkg/viseme"
)

type fakeSynth struct {
	calls atomic.Int32
	fail  string
}

func (f *fakeSynth) Synthesize(_ context.Context, text string) (*audio.Buffer, *viseme.Timeline, error) {
	f.calls.Add(1)
	if f.fail != "" && strings.Contains(text, f.fail) {
		return nil, nil, errors.New("synthesis failed")
	}
	format := audio.Format{SampleRate: 16000, Channels: 1}
	buf := &audio.Buffer{PCM: make([]byte, format.Bytes(300*time.Millisecond)), Format: format}
	return buf, viseme.Estimate(text, buf.Duration()), nil
}

func newRenderer(t *testing.T, synth synthesizer) *renderer {
	t.Helper()
	return &renderer{
		cur:   game.Default(),
		store: assets.NewStore(t.TempDir()),
		synth: synth,
	}
}

func TestRender_WritesEveryLine(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{}
	r := newRenderer(t, synth)
	keys := r.cur.Keys()

	n, err := r.render(context.Background(), false, 3)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if n != len(keys) {
		t.Errorf("rendered %d lines, want %d", n, len(keys))
	}
	if missing := r.store.Missing(keys); len(missing) != 0 {
		t.Errorf("missing after render: %v", missing)
	}

	asset, err := r.store.Load(context.Background(), game.KeyGreeting)
	if err != nil {
		t.Fatalf("Load(%q): %v", game.KeyGreeting, err)
	}
	buf, err := audio.DecodeWAV(asset.Audio)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if got := buf.Duration(); got != 300*time.Millisecond {
		t.Errorf("duration = %v, want 300ms", got)
	}
	if asset.Timeline.Empty() {
		t.Error("timeline is empty")
	}
}

func TestRender_SkipsExistingUnlessForced(t *testing.T) {
	t.Parallel()

	synth := &fakeSynth{}
	r := newRenderer(t, synth)
	total := len(r.cur.Keys())

	if _, err := r.render(context.Background(), false, 2); err != nil {
		t.Fatalf("first render: %v", err)
	}
	n, err := r.render(context.Background(), false, 2)
	if err != nil {
		t.Fatalf("second render: %v", err)
	}
	if n != 0 {
		t.Errorf("second render wrote %d lines, want 0", n)
	}
	if got := int(synth.calls.Load()); got != total {
		t.Errorf("synthesize calls = %d, want %d", got, total)
	}

	n, err = r.render(context.Background(), true, 2)
	if err != nil {
		t.Fatalf("forced render: %v", err)
	}
	if n != total {
		t.Errorf("forced render wrote %d lines, want %d", n, total)
	}
}

func TestRender_SynthesisError(t *testing.T) {
	t.Parallel()

	greeting, _ := game.Default().Text(game.KeyGreeting)
	r := newRenderer(t, &fakeSynth{fail: greeting})

	_, err := r.render(context.Background(), false, 1)
	if err == nil {
		t.Fatal("render succeeded, want error")
	}
	if !strings.Contains(err.Error(), game.KeyGreeting) {
		t.Errorf("error %q does not name the failing key", err)
	}
}
