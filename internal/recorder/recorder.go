package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"speechdesk/internal/audio"
	"speechdesk/internal/domain"
	"speechdesk/internal/ports"
)

// DefaultFramesPerRead matches a typical capture buffer of 1024 frames.
const DefaultFramesPerRead = 1024

// Config controls where and how clips are recorded.
type Config struct {
	Audio         ports.AudioConfig
	Directory     string
	FramesPerRead int
}

// Recorder owns at most one capture session at a time.
type Recorder struct {
	capture ports.AudioCapture
	cfg     Config
	logger  *log.Logger
	clock   func() time.Time

	mu      sync.Mutex
	current *Session
}

func New(capture ports.AudioCapture, cfg Config, logger *log.Logger) *Recorder {
	if cfg.FramesPerRead <= 0 {
		cfg.FramesPerRead = DefaultFramesPerRead
	}
	if cfg.Directory == "" {
		cfg.Directory = "recorded"
	}
	cfg.Audio.SampleRate = domain.RecordingFormat.SampleRate
	cfg.Audio.Channels = domain.RecordingFormat.Channels
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{capture: capture, cfg: cfg, logger: logger, clock: time.Now}
}

// Start opens the capture device and begins buffering frames in the
// background. It fails with domain.ErrAlreadyRecording while a session is
// active and with domain.ErrDeviceUnavailable when the device cannot open.
func (r *Recorder) Start(ctx context.Context) error {
	_, err := r.startSession(ctx)
	return err
}

func (r *Recorder) startSession(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		return nil, domain.ErrAlreadyRecording
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	source, err := r.capture.Start(sessionCtx, r.cfg.Audio)
	if err != nil {
		cancel()
		if !errors.Is(err, domain.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrDeviceUnavailable, err)
		}
		return nil, err
	}

	startedAt := r.clock()
	session := &Session{
		ID:        uuid.NewString(),
		StartedAt: startedAt,
		Path:      filepath.Join(r.cfg.Directory, clipName(startedAt)),
		source:    source,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	r.current = session

	go session.pump(sessionCtx, r.cfg.FramesPerRead*domain.RecordingFormat.FrameSize())

	r.logger.Info("recording started", "session", session.ID, "path", session.Path)
	return session, nil
}

// Stop signals the active capture to end, waits until every buffered frame
// has been drained, and writes the clip. Only one Stop handles a session;
// a concurrent call fails with domain.ErrNoActiveSession. Start keeps
// failing with domain.ErrAlreadyRecording until the clip is drained.
func (r *Recorder) Stop(ctx context.Context) (domain.AudioClip, error) {
	r.mu.Lock()
	session := r.current
	if session == nil || session.stopping {
		r.mu.Unlock()
		return domain.AudioClip{}, domain.ErrNoActiveSession
	}
	session.stopping = true
	r.mu.Unlock()

	stopErr := session.source.Stop()
	select {
	case <-session.done:
	case <-ctx.Done():
		// The device did not drain in time; closing the source unblocks the
		// pump and whatever was buffered so far is kept.
		_ = session.source.Close()
		<-session.done
	}
	session.cancel()
	_ = session.source.Close()

	r.mu.Lock()
	if r.current == session {
		r.current = nil
	}
	r.mu.Unlock()

	if stopErr != nil {
		r.logger.Warn("audio capture did not stop cleanly", "session", session.ID, "err", stopErr)
	}
	if readErr := session.readErr(); readErr != nil {
		r.logger.Warn("audio capture read failed", "session", session.ID, "err", readErr)
	}

	clip, err := audio.WriteClip(session.Path, session.Bytes(), domain.RecordingFormat)
	if err != nil {
		return domain.AudioClip{}, err
	}
	clip.CreatedAt = session.StartedAt

	r.logger.Info("recording saved", "session", session.ID, "path", clip.Path, "frames", clip.Frames, "duration", clip.Duration())
	return clip, nil
}

func clipName(t time.Time) string {
	return "recorded_audio_" + t.Format("20060102_150405") + ".wav"
}

// Session is one recording. Its buffer is written only by its own pump.
type Session struct {
	ID        string
	StartedAt time.Time
	Path      string

	source ports.AudioSession
	cancel context.CancelFunc
	done   chan struct{}

	// stopping is guarded by the recorder's mutex.
	stopping bool

	mu     sync.Mutex
	buffer bytes.Buffer
	err    error
}

// Bytes returns a copy of the frames captured so far.
func (s *Session) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buffer.Bytes()...)
}

func (s *Session) readErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) pump(ctx context.Context, chunkSize int) {
	defer close(s.done)

	buf := make([]byte, chunkSize)
	for {
		n, err := s.source.Read(buf)
		if n > 0 {
			s.mu.Lock()
			s.buffer.Write(buf[:n])
			s.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
			}
			return
		}
	}
}
