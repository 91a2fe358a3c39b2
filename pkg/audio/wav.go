package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// DecodeWAV parses a RIFF/WAVE file holding 8, 16, 24 or 32-bit integer PCM
// or 32-bit float PCM. Samples are converted to 16-bit.
func DecodeWAV(data []byte) (*Buffer, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrUnsupportedFormat)
	}
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV header", ErrDecode)
	}

	codec, bits := d.WavAudioFormat, d.BitDepth
	switch {
	case codec == wavFormatPCM && (bits == 8 || bits == 16 || bits == 24 || bits == 32):
	case codec == wavFormatFloat && bits == 32:
	default:
		return nil, fmt.Errorf("%w: WAV codec %d with %d-bit samples", ErrUnsupportedFormat, codec, bits)
	}

	ib, err := d.FullPCMBuffer()
	if err == nil && !d.WasPCMAccessed() {
		err = errors.New("no data chunk")
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	format := Format{SampleRate: int(d.SampleRate), Channels: int(d.NumChans)}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: invalid format %v", ErrDecode, format)
	}

	pcm := make([]byte, len(ib.Data)*2)
	for i, v := range ib.Data {
		putSample(pcm, i*2, toInt16(v, codec, bits))
	}
	return &Buffer{PCM: pcm, Format: format}, nil
}

func toInt16(v int, codec, bits uint16) int32 {
	if codec == wavFormatFloat {
		return int32(math.Float32frombits(uint32(v)) * 32767)
	}
	switch bits {
	case 8:
		// 8-bit WAV is unsigned.
		return int32(v-128) << 8
	case 24:
		return int32(v >> 8)
	case 32:
		return int32(v >> 16)
	}
	return int32(v)
}

// EncodeWAV writes buf as a 16-bit PCM RIFF/WAVE file. The header sizes are
// patched after the samples are written, so writers that cannot seek are fed
// through an in-memory buffer.
func EncodeWAV(w io.Writer, buf *Buffer) error {
	if buf == nil || !buf.Format.Valid() {
		return errors.New("audio: encode wav: invalid buffer")
	}
	ws, seekable := w.(io.WriteSeeker)
	if !seekable {
		ws = &seekBuffer{}
	}

	n := len(buf.PCM) / 2
	ib := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: buf.Format.Channels, SampleRate: buf.Format.SampleRate},
		Data:           make([]int, n),
		SourceBitDepth: 16,
	}
	for i := range n {
		ib.Data[i] = int(sampleAt(buf.PCM, i*2))
	}

	enc := wav.NewEncoder(ws, buf.Format.SampleRate, 16, buf.Format.Channels, wavFormatPCM)
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	if sb, ok := ws.(*seekBuffer); ok {
		if _, err := w.Write(sb.buf); err != nil {
			return fmt.Errorf("audio: encode wav: %w", err)
		}
	}
	return nil
}

type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if end := s.pos + len(p); end > len(s.buf) {
		s.buf = append(s.buf, make([]byte, end-len(s.buf))...)
	}
	n := copy(s.buf[s.pos:], p)
	s.pos += n
	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(s.pos) + offset
	case io.SeekEnd:
		abs = int64(len(s.buf)) + offset
	default:
		return 0, errors.New("audio: seek: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("audio: seek: negative position")
	}
	s.pos = int(abs)
	return abs, nil
}
