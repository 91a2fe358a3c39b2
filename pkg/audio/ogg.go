package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	"layeh.com/gopus"
)

const (
	// Opus always decodes at 48 kHz regardless of the input rate recorded in
	// the stream header.
	opusSampleRate = 48000

	// opusMaxFrameSize is the largest Opus packet duration (120 ms) in
	// samples per channel.
	opusMaxFrameSize = opusSampleRate * 120 / 1000

	oggHeaderLen = 27

	// noGranule marks a page on which no packet ends.
	noGranule = ^uint64(0)
)

// DecodeOggOpus decodes an Ogg-encapsulated Opus stream into 48 kHz PCM.
// The pre-skip from the OpusHead header is trimmed from the front and the
// granule position of the last page trims the padding from the end.
func DecodeOggOpus(data []byte) (*Buffer, error) {
	rec := &pageRecorder{r: bytes.NewReader(data)}
	ogg, head, err := oggreader.NewWith(rec)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated ogg page", ErrDecode)
		}
		return nil, fmt.Errorf("%w: ogg stream is not opus: %w", ErrUnsupportedFormat, err)
	}
	channels := int(head.Channels)
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("%w: %d opus channels", ErrUnsupportedFormat, channels)
	}
	serial := rec.serial()

	dec, err := gopus.NewDecoder(opusSampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}

	var (
		pcm     []byte
		partial []byte
		granule = noGranule
	)
	for {
		rec.reset()
		body, page, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: ogg page: %w", ErrDecode, err)
		}
		if rec.serial() != serial {
			continue
		}
		if page.GranulePosition != noGranule {
			granule = page.GranulePosition
		}

		off := 0
		for _, l := range rec.lacing() {
			partial = append(partial, body[off:off+int(l)]...)
			off += int(l)
			if l == 255 {
				continue
			}
			pkt := partial
			partial = nil
			if len(pkt) == 0 || bytes.HasPrefix(pkt, []byte("OpusTags")) {
				continue
			}
			samples, err := dec.Decode(pkt, opusMaxFrameSize, false)
			if err != nil {
				return nil, fmt.Errorf("%w: opus packet: %w", ErrDecode, err)
			}
			pcm = appendSamples(pcm, samples)
		}
	}

	format := Format{SampleRate: opusSampleRate, Channels: channels}
	preSkip := uint64(head.PreSkip)
	if granule != noGranule && granule >= preSkip {
		if end := int(granule) * format.FrameSize(); end < len(pcm) {
			pcm = pcm[:end]
		}
	}
	if skip := int(preSkip) * format.FrameSize(); skip < len(pcm) {
		pcm = pcm[skip:]
	} else {
		pcm = nil
	}
	return &Buffer{PCM: pcm, Format: format}, nil
}

// pageRecorder keeps the raw bytes of the page the oggreader is parsing so
// the serial number and lacing table, which it does not expose, can be read
// back.
type pageRecorder struct {
	r    io.Reader
	page []byte
}

func (p *pageRecorder) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.page = append(p.page, b[:n]...)
	return n, err
}

func (p *pageRecorder) reset() { p.page = p.page[:0] }

func (p *pageRecorder) serial() uint32 {
	if len(p.page) < oggHeaderLen {
		return 0
	}
	return binary.LittleEndian.Uint32(p.page[14:18])
}

func (p *pageRecorder) lacing() []byte {
	if len(p.page) < oggHeaderLen {
		return nil
	}
	n := int(p.page[26])
	if len(p.page) < oggHeaderLen+n {
		return nil
	}
	return p.page[oggHeaderLen : oggHeaderLen+n]
}

func appendSamples(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = append(dst, byte(s), byte(s>>8))
	}
	return dst
}
