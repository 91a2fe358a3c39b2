package avatar_test

import (
	"context"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/emi/internal/animation"
	"github.com/MrWong99/emi/internal/avatar"
	"github.com/MrWong99/emi/internal/lipsync"
	"github.com/MrWong99/emi/internal/observe"
	"github.com/MrWong99/emi/pkg/viseme"
)

// fakeClock is a settable [avatar.Clock].
type fakeClock struct {
	mu      sync.Mutex
	elapsed float64
	ok      bool
}

func (c *fakeClock) Elapsed() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed, c.ok
}

func (c *fakeClock) set(elapsed float64) {
	c.mu.Lock()
	c.elapsed, c.ok = elapsed, true
	c.mu.Unlock()
}

func newScheduler(t *testing.T) *lipsync.Scheduler {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return lipsync.New(lipsync.WithMetrics(m))
}

func TestTick_Silent(t *testing.T) {
	t.Parallel()

	r := avatar.New(&fakeClock{}, newScheduler(t), animation.New())
	p := r.Tick(33 * time.Millisecond)
	if p.Voiced || p.Viseme != "" || p.Shape != "" {
		t.Errorf("silent pose = %+v", p)
	}
	if p.Seq != 1 {
		t.Errorf("Seq=%d, want 1", p.Seq)
	}
	if p.Animation.Requested != animation.Idle {
		t.Errorf("requested=%v, want idle", p.Animation.Requested)
	}
	if len(p.Shapes) != len(viseme.Shapes()) {
		t.Errorf("shapes=%d, want one per morph target", len(p.Shapes))
	}
}

func TestTick_FollowsTimeline(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	sched := newScheduler(t)
	sched.Attach(viseme.NewTimeline([]viseme.Frame{
		{Start: 0, End: 0.2, Value: viseme.SymbolRest},
		{Start: 0.2, End: 0.5, Value: viseme.SymbolClosed},
	}))
	anim := animation.New()
	anim.SetAnimation(animation.Talking)

	var (
		mu    sync.Mutex
		poses []avatar.Pose
	)
	r := avatar.New(clock, sched, anim, avatar.WithObserver(func(p avatar.Pose) {
		mu.Lock()
		poses = append(poses, p)
		mu.Unlock()
	}))

	clock.set(0.1)
	first := r.Tick(250 * time.Millisecond)
	if first.Viseme != viseme.SymbolRest || first.Shape != viseme.ShapeNeutral {
		t.Errorf("first frame = %s/%s, want X/Neutral", first.Viseme, first.Shape)
	}

	clock.set(0.3)
	second := r.Tick(250 * time.Millisecond)
	if second.Viseme != viseme.SymbolClosed || second.Shape != viseme.ShapeMbp {
		t.Errorf("second frame = %s/%s, want A/Mbp", second.Viseme, second.Shape)
	}
	if second.Shapes[viseme.ShapeMbp] <= 0 {
		t.Error("Mbp weight did not rise")
	}
	if !second.Voiced || second.Elapsed != 0.3 {
		t.Errorf("elapsed=%f voiced=%v", second.Elapsed, second.Voiced)
	}

	// Two ticks of 250ms complete the 500ms cross-fade to talking.
	var talking float64
	for _, c := range second.Animation.Clips {
		if c.Clip == animation.Talking {
			talking = c.Weight
		}
	}
	if talking != animation.DefaultWeight {
		t.Errorf("talking weight=%f, want %f", talking, animation.DefaultWeight)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(poses) != 2 || poses[1].Seq != 2 {
		t.Errorf("observer saw %d poses", len(poses))
	}
	if r.Last().Seq != 2 {
		t.Errorf("Last().Seq=%d, want 2", r.Last().Seq)
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	t.Parallel()

	ticks := make(chan avatar.Pose, 64)
	r := avatar.New(&fakeClock{}, newScheduler(t), animation.New(),
		avatar.WithFPS(100),
		avatar.WithObserver(func(p avatar.Pose) {
			select {
			case ticks <- p:
			default:
			}
		}),
	)
	if r.Interval() != 10*time.Millisecond {
		t.Errorf("Interval=%v, want 10ms", r.Interval())
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	for range 3 {
		select {
		case <-ticks:
		case <-time.After(2 * time.Second):
			t.Fatal("renderer did not tick")
		}
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
