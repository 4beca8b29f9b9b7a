package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"speechdesk/internal/domain"
	"speechdesk/internal/ports"
)

func TestNewProviderDefaults(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{})
	if p.cfg.APIBaseURL != "https://api.deepgram.com/v1" {
		t.Fatalf("unexpected base url: %q", p.cfg.APIBaseURL)
	}
	if p.cfg.Model != "nova-2" {
		t.Fatalf("unexpected model: %q", p.cfg.Model)
	}
}

func TestProviderStartStreamingRequiresAPIKey(t *testing.T) {
	t.Parallel()

	p := NewProvider(Config{APIKey: ""})
	_, err := p.StartStreaming(context.Background(), ports.StreamingConfig{})
	if !errors.Is(err, domain.ErrUnexpectedBackend) {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestListenURLDefaults(t *testing.T) {
	t.Parallel()

	url, err := listenURL(Config{APIBaseURL: "https://api.deepgram.com/v1", Model: "nova-2"}, ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(url, "wss://api.deepgram.com/v1/listen") {
		t.Fatalf("unexpected ws url: %s", url)
	}
	for _, want := range []string{"encoding=linear16", "sample_rate=16000", "channels=1", "interim_results=false", "smart_format=false"} {
		if !strings.Contains(url, want) {
			t.Fatalf("expected %s in url: %s", want, url)
		}
	}
	if strings.Contains(url, "language=") {
		t.Fatalf("expected no language without a session language: %s", url)
	}
}

func TestListenURLWithLanguageAndSmartFormat(t *testing.T) {
	t.Parallel()

	url, err := listenURL(
		Config{APIBaseURL: "http://localhost:8080/v1/", Model: "m", SmartFormat: true},
		ports.StreamingConfig{Encoding: "linear16", SampleRate: 8000, Channels: 2, Language: "fa-IR"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(url, "ws://localhost:8080/v1/listen") {
		t.Fatalf("unexpected ws url: %s", url)
	}
	for _, want := range []string{"language=fa-IR", "smart_format=true", "sample_rate=8000", "channels=2", "interim_results=false"} {
		if !strings.Contains(url, want) {
			t.Fatalf("expected %s in url: %s", want, url)
		}
	}
}

func TestListenURLInvalidBase(t *testing.T) {
	t.Parallel()

	_, err := listenURL(Config{APIBaseURL: ":// bad"}, ports.StreamingConfig{})
	if err == nil {
		t.Fatalf("expected invalid base url error")
	}
}

func TestDialErrorClassification(t *testing.T) {
	t.Parallel()

	if err := dialError(nil, errors.New("connection refused")); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected service unavailable without response, got %v", err)
	}
	if err := dialError(&http.Response{StatusCode: 401, Status: "401 Unauthorized"}, errors.New("bad handshake")); !errors.Is(err, domain.ErrUnexpectedBackend) {
		t.Fatalf("expected unexpected backend for 401, got %v", err)
	}
	if err := dialError(&http.Response{StatusCode: 429, Status: "429 Too Many Requests"}, errors.New("bad handshake")); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected service unavailable for 429, got %v", err)
	}
	if err := dialError(&http.Response{StatusCode: 503, Status: "503 Service Unavailable"}, errors.New("bad handshake")); !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected service unavailable for 503, got %v", err)
	}
}

func TestListenMessageText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		payload string
		want    string
	}{
		{payload: `{"channel":{"alternatives":[{"transcript":" channel "}]}}`, want: "channel"},
		{payload: `{"results":{"channels":[{"alternatives":[{"transcript":"results"}]}]}}`, want: "results"},
		{payload: `{"channel":{"alternatives":[{"transcript":"  "}]}}`, want: ""},
		{payload: `{"type":"Metadata"}`, want: ""},
	}
	for _, tc := range cases {
		var msg listenMessage
		if err := json.Unmarshal([]byte(tc.payload), &msg); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.payload, err)
		}
		if got := msg.text(); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.payload, tc.want, got)
		}
	}
}

func TestListenSessionSendAudioAfterCloseSend(t *testing.T) {
	t.Parallel()

	s := &listenSession{finished: true}
	if err := s.SendAudio([]byte("x")); !errors.Is(err, errAudioClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
	if err := s.SendAudio(nil); err != nil {
		t.Fatalf("empty chunk should be ignored, got %v", err)
	}
}

func TestListenSessionCloseSendIsIdempotent(t *testing.T) {
	t.Parallel()

	s := &listenSession{audio: make(chan []byte, 1)}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.CloseSend(); err != nil {
		t.Fatalf("unexpected second error: %v", err)
	}
}

func TestListenSessionFailIgnoresCloseErrors(t *testing.T) {
	t.Parallel()

	s := &listenSession{}
	s.fail(&websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "closed"})
	if s.waitErr() != nil {
		t.Fatalf("expected close error to be ignored")
	}

	s.fail(errors.New("boom"))
	if s.waitErr() == nil || s.waitErr().Error() != "boom" {
		t.Fatalf("expected non-close error to be captured")
	}
}

func TestListenSessionFailFirstWins(t *testing.T) {
	t.Parallel()

	s := &listenSession{}
	s.fail(errors.New("first"))
	s.fail(errors.New("second"))
	if s.waitErr() == nil || s.waitErr().Error() != "first" {
		t.Fatalf("expected first error to win")
	}
}

func TestListenSessionProviderErrorMessage(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Error","message":"bad audio"}`))
		time.Sleep(20 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := NewProvider(Config{APIKey: "key", APIBaseURL: srv.URL}).StartStreaming(ctx, ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("start streaming failed: %v", err)
	}
	defer session.Close()

	for range session.Segments() {
		t.Fatalf("expected no segments")
	}
	if err := session.Wait(); !errors.Is(err, domain.ErrUnexpectedBackend) || !strings.Contains(err.Error(), "bad audio") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestListenSessionCloseUnblocksPendingSegments(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 100; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"channel":{"alternatives":[{"transcript":"x"}]}}`)); err != nil {
				return
			}
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := NewProvider(Config{APIKey: "key", APIBaseURL: srv.URL}).StartStreaming(ctx, ports.StreamingConfig{})
	if err != nil {
		t.Fatalf("start streaming failed: %v", err)
	}

	closed := make(chan error, 1)
	go func() { closed <- session.Close() }()

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("unexpected close error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("close blocked on undelivered segments")
	}
}
