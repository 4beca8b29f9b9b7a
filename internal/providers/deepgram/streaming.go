package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"speechdesk/internal/domain"
	"speechdesk/internal/ports"
)

var (
	errAudioClosed   = errors.New("audio stream is already closed")
	errSessionClosed = errors.New("deepgram session closed")
)

const closeStreamMessage = `{"type":"CloseStream"}`

// Config controls the Deepgram listen endpoint.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	SmartFormat bool
}

// Provider implements ports.StreamingProvider on the Deepgram /listen
// websocket. Interim results are never requested: every segment a session
// yields is final text.
type Provider struct {
	cfg Config
}

func NewProvider(cfg Config) *Provider {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "https://api.deepgram.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	return &Provider{cfg: cfg}
}

func (p *Provider) StartStreaming(ctx context.Context, cfg ports.StreamingConfig) (ports.StreamingSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY is not configured", domain.ErrUnexpectedBackend)
	}

	wsURL, err := listenURL(p.cfg, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnexpectedBackend, err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.cfg.APIKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, dialError(resp, err)
	}

	session := newListenSession(conn)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()
	return session, nil
}

// listenSession pushes audio on one goroutine and reads results on another.
// Segments are handed over without dropping any: the reader blocks until the
// consumer takes each one or the session is closed.
type listenSession struct {
	conn *websocket.Conn

	segments chan string
	audio    chan []byte
	closed   chan struct{}
	readDone chan struct{}
	done     chan struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once

	sendMu   sync.RWMutex
	finished bool

	errMu sync.Mutex
	err   error
}

func newListenSession(conn *websocket.Conn) *listenSession {
	s := &listenSession{
		conn:     conn,
		segments: make(chan string, 16),
		audio:    make(chan []byte, 32),
		closed:   make(chan struct{}),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.wg.Add(2)
	go s.writeLoop()
	go s.readLoop()
	go func() {
		s.wg.Wait()
		close(s.segments)
		close(s.done)
		_ = conn.Close()
	}()
	return s
}

func (s *listenSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.finished {
		return errAudioClosed
	}

	select {
	case s.audio <- append([]byte(nil), chunk...):
		return nil
	case <-s.closed:
		return errSessionClosed
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errSessionClosed
	}
}

// CloseSend ends the audio stream; Deepgram flushes its remaining results
// and then closes the connection.
func (s *listenSession) CloseSend() error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if !s.finished {
		s.finished = true
		close(s.audio)
	}
	return nil
}

func (s *listenSession) Segments() <-chan string {
	return s.segments
}

func (s *listenSession) Wait() error {
	<-s.done
	return s.waitErr()
}

// Close abandons the session without waiting for pending results.
func (s *listenSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
	_ = s.CloseSend()
	<-s.done
	return s.waitErr()
}

func (s *listenSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *listenSession) fail(err error) {
	if err == nil || isNormalClose(err) {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *listenSession) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

func (s *listenSession) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if err := s.conn.WriteMessage(websocket.TextMessage, []byte(closeStreamMessage)); err != nil && !s.isClosed() {
					s.fail(fmt.Errorf("failed to close stream: %w", err))
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				if !s.isClosed() {
					s.fail(fmt.Errorf("failed to send audio: %w", err))
				}
				return
			}
		case <-s.readDone:
			// Nothing more will be read, so further audio is pointless.
			return
		}
	}
}

func (s *listenSession) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !s.isClosed() {
				s.fail(fmt.Errorf("failed to read provider event: %w", err))
			}
			return
		}

		var msg listenMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		if strings.EqualFold(msg.Type, "Error") {
			detail := strings.TrimSpace(msg.Message)
			if detail == "" {
				detail = "deepgram returned an unknown error"
			}
			s.fail(fmt.Errorf("%w: %s", domain.ErrUnexpectedBackend, detail))
			return
		}

		text := msg.text()
		if text == "" {
			continue
		}
		select {
		case s.segments <- text:
		case <-s.closed:
			return
		}
	}
}

type listenAlternative struct {
	Transcript string `json:"transcript"`
}

// listenMessage covers both the live result shape (channel) and the
// pre-recorded shape (results.channels).
type listenMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Channel struct {
		Alternatives []listenAlternative `json:"alternatives"`
	} `json:"channel"`
	Results struct {
		Channels []struct {
			Alternatives []listenAlternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (m listenMessage) text() string {
	if alts := m.Channel.Alternatives; len(alts) > 0 {
		if text := strings.TrimSpace(alts[0].Transcript); text != "" {
			return text
		}
	}
	if chans := m.Results.Channels; len(chans) > 0 && len(chans[0].Alternatives) > 0 {
		return strings.TrimSpace(chans[0].Alternatives[0].Transcript)
	}
	return ""
}

func dialError(resp *http.Response, err error) error {
	if resp != nil && resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%w: Deepgram rejected the connection: %s", domain.ErrUnexpectedBackend, resp.Status)
	}
	return fmt.Errorf("%w: failed to connect to Deepgram websocket: %v", domain.ErrServiceUnavailable, err)
}

func listenURL(cfg Config, stream ports.StreamingConfig) (string, error) {
	base := strings.TrimSpace(cfg.APIBaseURL)
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	u, err := url.Parse(strings.TrimRight(base, "/") + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	encoding := stream.Encoding
	if encoding == "" {
		encoding = "linear16"
	}
	rate := stream.SampleRate
	if rate <= 0 {
		rate = domain.RecordingFormat.SampleRate
	}
	channels := stream.Channels
	if channels <= 0 {
		channels = domain.RecordingFormat.Channels
	}

	q := u.Query()
	q.Set("model", cfg.Model)
	q.Set("encoding", encoding)
	q.Set("sample_rate", strconv.Itoa(rate))
	q.Set("channels", strconv.Itoa(channels))
	q.Set("interim_results", "false")
	q.Set("smart_format", strconv.FormatBool(cfg.SmartFormat))
	if stream.Language != "" {
		q.Set("language", stream.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
