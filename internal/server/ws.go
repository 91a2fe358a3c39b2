package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/emi/internal/observe"
	"github.com/MrWong99/emi/pkg/audio"
	"github.com/MrWong99/emi/pkg/provider/stt"
)

const (
	// readLimit bounds one inbound frame; microphone frames are the largest.
	readLimit = 1 << 20
	// writeTimeout bounds one outbound frame write.
	writeTimeout = 5 * time.Second
)

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	target := audio.Format{SampleRate: s.sttCfg.SampleRate, Channels: s.sttCfg.Channels}
	mic, err := micFormat(r, target)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		observe.LoggerFrom(r.Context(), s.log).Warn("server: websocket accept failed", "err", err)
		return
	}
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := s.hub.add(ctx, conn)
	c.mic = mic
	c.conv = &audio.FormatConverter{Target: target}
	defer s.hub.remove(context.WithoutCancel(ctx), c)
	c.sendJSON(TypeState, s.dlg.Snapshot())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.writeLoop(gctx) })
	g.Go(func() error { return s.readLoop(gctx, c) })
	err = g.Wait()

	cancel()
	if c.stt != nil {
		if cerr := c.stt.Close(); cerr != nil {
			c.log.Debug("server: close stt session", "err", cerr)
		}
	}
	c.wg.Wait()

	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure, status == websocket.StatusGoingAway, errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		c.log.Warn("server: connection ended", "err", err)
		conn.Close(websocket.StatusInternalError, "connection error")
	}
}

func (c *client) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, msg.typ, msg.data)
			cancel()
			if err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, c *client) error {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		switch typ {
		case websocket.MessageBinary:
			err = s.audioIn(ctx, c, data)
		default:
			err = s.handleMessage(ctx, data)
		}
		if err != nil {
			c.log.Debug("server: message rejected", "err", err)
			c.sendJSON(TypeError, ErrorPayload{Message: err.Error()})
		}
	}
}

// handleMessage routes one inbound JSON envelope to the dialogue.
func (s *Server) handleMessage(ctx context.Context, data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	switch env.Type {
	case TypeTranscript:
		p, err := decodePayload[TranscriptPayload](env)
		if err != nil {
			return err
		}
		return s.dlg.Transcript(ctx, p.Text)
	case TypeSelect:
		p, err := decodePayload[SelectPayload](env)
		if err != nil {
			return err
		}
		return s.dlg.Select(ctx, p.Answer)
	case TypeSpeak:
		p, err := decodePayload[SpeakPayload](env)
		if err != nil {
			return err
		}
		return s.speak(ctx, p)
	case TypeControl:
		p, err := decodePayload[ControlPayload](env)
		if err != nil {
			return err
		}
		return s.control(ctx, p)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrBadMessage, env.Type)
	}
}

// audioIn forwards microphone PCM to the client's recognition session,
// starting it on the first frame.
func (s *Server) audioIn(ctx context.Context, c *client, pcm []byte) error {
	if s.stt == nil {
		return ErrSTTDisabled
	}
	if c.stt == nil {
		sess, err := s.stt.StartStream(ctx, s.sttCfg)
		if err != nil {
			return fmt.Errorf("server: start recognition: %w", err)
		}
		c.stt = sess
		c.wg.Add(1)
		go s.forwardTranscripts(ctx, c, sess)
		c.log.Info("server: recognition session started", "mic", c.mic.String(), "sample_rate", s.sttCfg.SampleRate)
	}
	frame := c.conv.Convert(audio.AudioFrame{Data: pcm, SampleRate: c.mic.SampleRate, Channels: c.mic.Channels})
	if frame.Data == nil {
		return fmt.Errorf("%w: microphone frame is not 16-bit PCM", ErrBadMessage)
	}
	return c.stt.SendAudio(frame.Data)
}

// micFormat reads the microphone format a client announces with the
// sample_rate and channels query parameters. Missing values default to def.
func micFormat(r *http.Request, def audio.Format) (audio.Format, error) {
	f := def
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
		max  int
	}{
		{"sample_rate", &f.SampleRate, 192000},
		{"channels", &f.Channels, 2},
	} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > p.max {
			return audio.Format{}, fmt.Errorf("%w: invalid %s %q", ErrBadMessage, p.name, v)
		}
		*p.dst = n
	}
	return f, nil
}

// forwardTranscripts publishes recognition results and feeds committed
// finals into the dialogue.
func (s *Server) forwardTranscripts(ctx context.Context, c *client, sess stt.SessionHandle) {
	defer c.wg.Done()
	partials, finals := sess.Partials(), sess.Finals()
	for partials != nil || finals != nil {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			s.hub.Broadcast(TypeTranscription, TranscriptionPayload{Text: t.Text, Confidence: t.Confidence})
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			s.hub.Broadcast(TypeTranscription, TranscriptionPayload{Text: t.Text, Final: true, Confidence: t.Confidence})
			if err := s.dlg.Transcript(ctx, t.Text); err != nil && !errors.Is(err, context.Canceled) {
				c.log.Warn("server: transcript not delivered", "err", err)
			}
		}
	}
}
