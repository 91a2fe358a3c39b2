package audio

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Compile-time interface assertion.
var _ Context = (*Device)(nil)

const (
	// DefaultFrameDuration is the output frame length of a [Device].
	DefaultFrameDuration = 20 * time.Millisecond

	defaultSampleRate = 48000
	defaultChannels   = 2
)

// DeviceOption configures a [Device] during construction.
type DeviceOption func(*Device)

// WithFormat sets the output format. Default: 48 kHz stereo.
func WithFormat(f Format) DeviceOption {
	return func(d *Device) {
		if f.Valid() {
			d.format = f
		}
	}
}

// WithFrameDuration sets the output frame length. Default: 20 ms.
func WithFrameDuration(fd time.Duration) DeviceOption {
	return func(d *Device) {
		if fd > 0 {
			d.frameDur = fd
		}
	}
}

// WithSink sets the receiver of mixed output frames.
func WithSink(s Sink) DeviceOption {
	return func(d *Device) {
		d.sink = s
	}
}

// Device is a software [Context]. A background goroutine paced by a ticker
// mixes all active sources into fixed-length frames and hands them to the
// [Sink], so output runs in real time. The clock is the wall clock minus the
// time spent suspended.
//
// Clock timers are checked on every pump tick, so they fire at most one
// frame duration late and never early.
type Device struct {
	format   Format
	frameDur time.Duration

	mu        sync.Mutex
	sink      Sink
	sources   []*source
	timers    []*clockTimer
	elapsed   time.Duration // clock value at the last suspend
	startedAt time.Time     // zero while suspended
	closed    bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewDevice creates a running Device and starts its pump goroutine. Call
// [Device.Close] to stop it.
func NewDevice(opts ...DeviceOption) *Device {
	d := &Device{
		format:    Format{SampleRate: defaultSampleRate, Channels: defaultChannels},
		frameDur:  DefaultFrameDuration,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	d.wg.Add(1)
	go d.pump()
	return d
}

// SetSink replaces the output receiver.
func (d *Device) SetSink(s Sink) {
	d.mu.Lock()
	d.sink = s
	d.mu.Unlock()
}

// Format implements [Context].
func (d *Device) Format() Format { return d.format }

// Now implements [Context].
func (d *Device) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nowLocked()
}

func (d *Device) nowLocked() time.Duration {
	if d.startedAt.IsZero() {
		return d.elapsed
	}
	return d.elapsed + time.Since(d.startedAt)
}

// Decode implements [Context].
func (d *Device) Decode(data []byte) (*Buffer, error) {
	if d.Closed() {
		return nil, ErrClosed
	}
	buf, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Convert(buf, d.format), nil
}

// Play implements [Context].
func (d *Device) Play(buf *Buffer) (Playback, error) {
	if buf == nil {
		return nil, fmt.Errorf("audio: play: nil buffer")
	}
	pcm := Convert(buf, d.format).PCM

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	src := &source{dev: d, pcm: pcm}
	d.sources = append(d.sources, src)
	return src, nil
}

// AfterFunc implements [Context].
func (d *Device) AfterFunc(after time.Duration, f func()) Timer {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &clockTimer{dev: d, deadline: d.nowLocked() + after, f: f}
	if !d.closed {
		d.timers = append(d.timers, t)
	}
	return t
}

// Suspend implements [Context].
func (d *Device) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if !d.startedAt.IsZero() {
		d.elapsed = d.nowLocked()
		d.startedAt = time.Time{}
	}
	return nil
}

// Resume implements [Context].
func (d *Device) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.startedAt.IsZero() {
		d.startedAt = time.Now()
	}
	return nil
}

// Suspended reports whether output is suspended.
func (d *Device) Suspended() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startedAt.IsZero()
}

// Closed implements [Context].
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Active returns the number of sources still playing.
func (d *Device) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sources)
}

// Close stops the pump goroutine and drops all sources and pending timers.
// Close is idempotent.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.sources = nil
	d.timers = nil
	d.mu.Unlock()

	close(d.done)
	d.wg.Wait()
	return nil
}

// pump mixes one frame per tick and fires due timers.
func (d *Device) pump() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.frameDur)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			frame, sink, due := d.step()
			if frame != nil && sink != nil {
				sink(*frame)
			}
			for _, t := range due {
				go t.f()
			}
		}
	}
}

// step advances mixing by one frame while running and collects timers whose
// deadline has passed.
func (d *Device) step() (*AudioFrame, Sink, []*clockTimer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.startedAt.IsZero() {
		return nil, nil, nil
	}
	now := d.nowLocked()

	var due []*clockTimer
	d.timers = slices.DeleteFunc(d.timers, func(t *clockTimer) bool {
		if t.deadline <= now {
			t.fired = true
			due = append(due, t)
			return true
		}
		return false
	})

	if len(d.sources) == 0 {
		return nil, d.sink, due
	}
	out := make([]byte, d.format.Bytes(d.frameDur))
	d.sources = slices.DeleteFunc(d.sources, func(s *source) bool {
		end := min(s.pos+len(out), len(s.pcm))
		Mix(out, s.pcm[s.pos:end])
		s.pos = end
		if s.pos >= len(s.pcm) {
			s.done = true
			return true
		}
		return false
	})
	return &AudioFrame{
		Data:       out,
		SampleRate: d.format.SampleRate,
		Channels:   d.format.Channels,
		Timestamp:  now,
	}, d.sink, due
}

// source is one playing buffer.
type source struct {
	dev  *Device
	pcm  []byte
	pos  int
	done bool
}

// Stop implements [Playback].
func (s *source) Stop() {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	d.sources = slices.DeleteFunc(d.sources, func(o *source) bool { return o == s })
	slog.Debug("audio: source stopped", "remaining", len(d.sources))
}

// clockTimer is a pending AfterFunc call on a Device.
type clockTimer struct {
	dev      *Device
	deadline time.Duration
	f        func()
	fired    bool
	stopped  bool
}

// Stop implements [Timer].
func (t *clockTimer) Stop() bool {
	d := t.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	d.timers = slices.DeleteFunc(d.timers, func(o *clockTimer) bool { return o == t })
	return true
}
