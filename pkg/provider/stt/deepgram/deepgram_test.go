package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/emi/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "en"})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "encoding", "linear16", q.Get("encoding"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	assertEqual(t, "endpointing", "300", q.Get("endpointing"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "1", q.Get("channels"))
}

func TestBuildURL_Options(t *testing.T) {
	p, err := New("key",
		WithModel("base"),
		WithLanguage("de-DE"),
		WithSampleRate(48000),
		WithEndpointing(500*time.Millisecond),
		WithEndpoint("ws://localhost:8080/v1/listen"),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "host", "localhost:8080", u.Host)
	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	assertEqual(t, "endpointing", "500", q.Get("endpointing"))
}

func TestBuildURL_LanguageOverridenByCfg(t *testing.T) {
	p, err := New("key", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{Language: "fr-FR", SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "fr-FR", u.Query().Get("language"))
}

func TestBuildURL_Keywords(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{
		SampleRate: 16000,
		Keywords: []stt.KeywordBoost{
			{Keyword: "bathtub", Boost: 2},
			{Keyword: "toothbrush", Boost: 1.5},
		},
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	kws := u.Query()["keywords"]
	if len(kws) != 2 {
		t.Fatalf("expected 2 keywords, got %d: %v", len(kws), kws)
	}
	found := map[string]bool{}
	for _, kw := range kws {
		found[kw] = true
	}
	if !found["bathtub:2"] || !found["toothbrush:1.5"] {
		t.Errorf("unexpected keywords %v", kws)
	}
}

// ---- JSON parsing tests ----

func TestParseDeepgramResponse_Final(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"speech_final": true,
		"start": 1.5,
		"duration": 1.0,
		"channel": {
			"alternatives": [{
				"transcript": "a red ball ",
				"confidence": 0.95,
				"words": [
					{"word": "a", "start": 1.6, "end": 1.7, "confidence": 0.97},
					{"word": "red", "start": 1.8, "end": 2.0, "confidence": 0.93},
					{"word": "ball", "start": 2.1, "end": 2.4, "confidence": 0.95}
				]
			}]
		}
	}`)

	r, ok := parseDeepgramResponse(raw)
	if !ok {
		t.Fatal("expected ok=true for valid Results message")
	}
	if !r.IsFinal || !r.speechFinal {
		t.Errorf("IsFinal=%v speechFinal=%v, want both true", r.IsFinal, r.speechFinal)
	}
	assertEqual(t, "text", "a red ball", r.Text)
	if len(r.Words) != 3 {
		t.Fatalf("expected 3 words, got %d", len(r.Words))
	}
	if r.Timestamp != 1500*time.Millisecond {
		t.Errorf("timestamp=%v, want 1.5s", r.Timestamp)
	}
}

func TestParseDeepgramResponse_Ignored(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"metadata", `{"type":"Metadata","request_id":"abc"}`},
		{"no alternatives", `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{"invalid json", `{invalid`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := parseDeepgramResponse([]byte(tt.raw)); ok {
				t.Error("expected ok=false")
			}
		})
	}
}

func TestCommit_JoinsSegments(t *testing.T) {
	got, ok := commit([]stt.Transcript{
		{Text: "it is", Confidence: 0.8, Timestamp: time.Second, Duration: time.Second},
		{Text: "a duck", Confidence: 1.0, Timestamp: 2 * time.Second, Duration: time.Second},
	})
	if !ok {
		t.Fatal("commit reported nothing to commit")
	}
	assertEqual(t, "text", "it is a duck", got.Text)
	if got.Confidence != 0.9 {
		t.Errorf("confidence=%f, want 0.9", got.Confidence)
	}
	if got.Duration != 2*time.Second {
		t.Errorf("duration=%v, want 2s", got.Duration)
	}
	if _, ok := commit(nil); ok {
		t.Error("commit(nil) reported a transcript")
	}
}

// ---- Session against a local server ----

func TestSession_CommitsOnSpeechFinal(t *testing.T) {
	var (
		mu    sync.Mutex
		auth  string
		audio int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		typ, data, err := conn.Read(ctx)
		if err != nil || typ != websocket.MessageBinary {
			return
		}
		mu.Lock()
		audio += len(data)
		mu.Unlock()

		for _, msg := range []string{
			`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"it's"}]}}`,
			`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"it's a","confidence":1}]}}`,
			`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"rubber duck","confidence":1}]}}`,
		} {
			if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
				return
			}
		}
		// Wait for CloseStream.
		_, _, _ = conn.Read(ctx)
	}))
	defer srv.Close()

	p, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := sess.SendAudio(make([]byte, 640)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case partial := <-sess.Partials():
		assertEqual(t, "partial", "it's", partial.Text)
	case <-ctx.Done():
		t.Fatal("no partial transcript")
	}
	select {
	case final := <-sess.Finals():
		assertEqual(t, "final", "it's a rubber duck", final.Text)
		if !final.IsFinal {
			t.Error("final transcript not marked final")
		}
	case <-ctx.Done():
		t.Fatal("no final transcript")
	}

	if err := sess.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := sess.SendAudio([]byte{0, 0}); err != stt.ErrSessionClosed {
		t.Errorf("SendAudio after Close = %v, want ErrSessionClosed", err)
	}

	mu.Lock()
	defer mu.Unlock()
	assertEqual(t, "authorization", "Token secret", auth)
	if audio != 640 {
		t.Errorf("server received %d audio bytes, want 640", audio)
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	if p.sampleRate != defaultSampleRate {
		t.Errorf("expected sampleRate %d, got %d", defaultSampleRate, p.sampleRate)
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
