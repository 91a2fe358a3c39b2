package audio

import (
	"log/slog"
	"sync"
)

// Convert returns buf in the target format. When the formats already match
// buf is returned as is. Resampling happens before channel remixing so that
// a stereo-to-mono conversion never resamples the extra channel.
func Convert(buf *Buffer, target Format) *Buffer {
	if buf == nil || buf.Format == target || !target.Valid() || !buf.Format.Valid() {
		return buf
	}
	pcm := buf.PCM
	if buf.Format.SampleRate != target.SampleRate {
		pcm = Resample(pcm, buf.Format.Channels, buf.Format.SampleRate, target.SampleRate)
	}
	if buf.Format.Channels != target.Channels {
		pcm = Remix(pcm, buf.Format.Channels, target.Channels)
	}
	return &Buffer{PCM: pcm, Format: target}
}

// FormatConverter converts streamed frames to a target format. It warns once
// on the first format mismatch and once on misaligned PCM.
// Create one per stream; not designed for shared use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts a frame to the target format. Frames with a trailing
// partial sample are dropped and returned with nil Data.
func (c *FormatConverter) Convert(frame AudioFrame) AudioFrame {
	src := frame.Format()
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"format", src.String(),
			)
		})
		return AudioFrame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	}
	if src == c.Target {
		return frame
	}
	c.warnedMismatch.Do(func() {
		slog.Warn("audio: format mismatch, converting", "from", src.String(), "to", c.Target.String())
	})
	out := Convert(&Buffer{PCM: frame.Data, Format: src}, c.Target)
	return AudioFrame{
		Data:       out.PCM,
		SampleRate: out.Format.SampleRate,
		Channels:   out.Format.Channels,
		Timestamp:  frame.Timestamp,
	}
}

// Resample converts interleaved PCM with the given channel count from
// srcRate to dstRate using linear interpolation between neighbouring sample
// frames. Invalid rates return pcm unchanged.
func Resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 || srcRate == dstRate {
		return pcm
	}
	frameSize := 2 * channels
	srcFrames := len(pcm) / frameSize
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := make([]byte, dstFrames*frameSize)
	step := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			a := sampleAt(pcm, idx*frameSize+2*ch)
			b := sampleAt(pcm, next*frameSize+2*ch)
			putSample(out, i*frameSize+2*ch, int32(float64(a)*(1-frac)+float64(b)*frac))
		}
	}
	return out
}

// Remix converts interleaved PCM between channel counts. Going down, all
// source channels are averaged into every output channel; going up, mono is
// copied to every output channel and wider sources are first folded to mono.
func Remix(pcm []byte, from, to int) []byte {
	if from <= 0 || to <= 0 || from == to {
		return pcm
	}
	frames := len(pcm) / (2 * from)
	out := make([]byte, frames*2*to)
	for i := range frames {
		var sum int32
		for ch := range from {
			sum += int32(sampleAt(pcm, (i*from+ch)*2))
		}
		v := sum / int32(from)
		for ch := range to {
			putSample(out, (i*to+ch)*2, v)
		}
	}
	return out
}

// Mix adds src into dst sample by sample with clipping. Both must share a
// format; the shorter length wins.
func Mix(dst, src []byte) {
	n := min(len(dst), len(src)) &^ 1
	for i := 0; i < n; i += 2 {
		putSample(dst, i, int32(sampleAt(dst, i))+int32(sampleAt(src, i)))
	}
}

func sampleAt(pcm []byte, off int) int16 {
	return int16(pcm[off]) | int16(pcm[off+1])<<8
}

// putSample stores v clamped to the int16 range.
func putSample(pcm []byte, off int, v int32) {
	v = max(-32768, min(32767, v))
	pcm[off] = byte(v)
	pcm[off+1] = byte(v >> 8)
}
