package audio_test

import (
	"encoding/binary"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/emi/pkg/audio"
)

// samplesToBytes converts int16 samples to little-endian PCM.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts little-endian PCM to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestFormat_DurationAndBytes(t *testing.T) {
	t.Parallel()

	f := audio.Format{SampleRate: 48000, Channels: 2}
	if got := f.Bytes(20 * time.Millisecond); got != 3840 {
		t.Errorf("Bytes(20ms) = %d, want 3840", got)
	}
	if got := f.Duration(3840); got != 20*time.Millisecond {
		t.Errorf("Duration(3840) = %v, want 20ms", got)
	}
	if got := (audio.Format{}).Duration(100); got != 0 {
		t.Errorf("invalid format duration = %v, want 0", got)
	}
	if got := f.String(); got != "48000Hz stereo" {
		t.Errorf("String() = %q", got)
	}
}

func TestRemix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       []int16
		from, to int
		want     []int16
	}{
		{"mono to stereo", []int16{100, 200, 300}, 1, 2, []int16{100, 100, 200, 200, 300, 300}},
		{"stereo to mono", []int16{100, 200, -100, -200}, 2, 1, []int16{150, -150}},
		{"stereo to mono at the rails", []int16{32767, 32767}, 2, 1, []int16{32767}},
		{"same count", []int16{1, 2}, 2, 2, []int16{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := bytesToSamples(audio.Remix(samplesToBytes(tt.in), tt.from, tt.to))
			if !slices.Equal(got, tt.want) {
				t.Errorf("Remix = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResample(t *testing.T) {
	t.Parallel()

	t.Run("same rate", func(t *testing.T) {
		pcm := samplesToBytes([]int16{100, 200, 300})
		if out := audio.Resample(pcm, 1, 48000, 48000); len(out) != len(pcm) {
			t.Fatalf("length = %d, want %d", len(out), len(pcm))
		}
	})
	t.Run("upsample interpolates", func(t *testing.T) {
		got := bytesToSamples(audio.Resample(samplesToBytes([]int16{0, 100}), 1, 1, 2))
		want := []int16{0, 50, 100, 100}
		if !slices.Equal(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
	t.Run("downsample halves", func(t *testing.T) {
		in := samplesToBytes(make([]int16, 480))
		if out := audio.Resample(in, 1, 48000, 24000); len(out) != 480 {
			t.Errorf("length = %d, want 480 bytes", len(out))
		}
	})
	t.Run("stereo keeps channels apart", func(t *testing.T) {
		got := bytesToSamples(audio.Resample(samplesToBytes([]int16{10, -10, 30, -30}), 2, 1, 2))
		want := []int16{10, -10, 20, -20, 30, -30, 30, -30}
		if !slices.Equal(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
	t.Run("zero rate", func(t *testing.T) {
		pcm := samplesToBytes([]int16{1, 2})
		if out := audio.Resample(pcm, 1, 0, 16000); len(out) != len(pcm) {
			t.Errorf("zero source rate should return input unchanged")
		}
	})
}

func TestMix_Clips(t *testing.T) {
	t.Parallel()

	dst := samplesToBytes([]int16{30000, -30000, 5})
	audio.Mix(dst, samplesToBytes([]int16{10000, -10000}))
	got := bytesToSamples(dst)
	want := []int16{32767, -32768, 5}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestConvert_Buffer(t *testing.T) {
	t.Parallel()

	src := &audio.Buffer{PCM: samplesToBytes(make([]int16, 16000)), Format: audio.Format{SampleRate: 16000, Channels: 1}}
	target := audio.Format{SampleRate: 48000, Channels: 2}

	out := audio.Convert(src, target)
	if out.Format != target {
		t.Fatalf("format = %v, want %v", out.Format, target)
	}
	if out.Duration() != time.Second {
		t.Errorf("duration = %v, want 1s", out.Duration())
	}
	if same := audio.Convert(out, target); same != out {
		t.Error("matching format should return the same buffer")
	}
}

func TestFormatConverter(t *testing.T) {
	t.Parallel()

	conv := &audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}

	t.Run("no-op", func(t *testing.T) {
		in := audio.AudioFrame{Data: samplesToBytes([]int16{1, 2}), SampleRate: 16000, Channels: 1}
		if out := conv.Convert(in); len(out.Data) != 4 || out.SampleRate != 16000 {
			t.Errorf("unexpected conversion: %+v", out)
		}
	})
	t.Run("full conversion", func(t *testing.T) {
		in := audio.AudioFrame{
			Data:       samplesToBytes(make([]int16, 960*2)),
			SampleRate: 48000,
			Channels:   2,
			Timestamp:  40 * time.Millisecond,
		}
		out := conv.Convert(in)
		if out.SampleRate != 16000 || out.Channels != 1 {
			t.Fatalf("format = %dHz/%d", out.SampleRate, out.Channels)
		}
		if len(out.Data) != 320*2 {
			t.Errorf("data length = %d, want 640", len(out.Data))
		}
		if out.Timestamp != in.Timestamp {
			t.Error("timestamp not preserved")
		}
	})
	t.Run("odd byte count dropped", func(t *testing.T) {
		out := conv.Convert(audio.AudioFrame{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1})
		if out.Data != nil {
			t.Errorf("want nil data, got %d bytes", len(out.Data))
		}
	})
}

func TestDrain(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 3)
	ch <- 1
	ch <- 2
	close(ch)
	audio.Drain(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not drained")
	}
}
