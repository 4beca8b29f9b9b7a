package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"

	"speechdesk/internal/audio"
	"speechdesk/internal/domain"
	"speechdesk/internal/ports"
)

// Config controls post-transcription behavior.
type Config struct {
	AutoCopy bool
}

// SessionController drives Idle → Recording → Stopping → Processing → Idle.
type SessionController struct {
	recorder    ports.Recorder
	transcriber ports.Transcriber
	events      ports.EventSink
	finalizer   transcriptFinalizer
	logger      *log.Logger

	mu    sync.Mutex
	state domain.SessionState
	jobs  sync.WaitGroup
}

func NewSessionController(
	recorder ports.Recorder,
	transcriber ports.Transcriber,
	history ports.HistoryStore,
	clipboard ports.Clipboard,
	events ports.EventSink,
	logger *log.Logger,
	cfg Config,
) *SessionController {
	if logger == nil {
		logger = log.Default()
	}
	return &SessionController{
		recorder:    recorder,
		transcriber: transcriber,
		events:      events,
		finalizer:   newTranscriptFinalizer(history, clipboard, events, logger, cfg.AutoCopy),
		logger:      logger,
		state:       domain.SessionStateIdle,
	}
}

// Start begins recording. Only valid from Idle.
func (c *SessionController) Start(ctx context.Context) error {
	if err := c.transition(domain.SessionStateIdle, domain.SessionStateRecording); err != nil {
		return err
	}

	if err := c.recorder.Start(ctx); err != nil {
		c.setState(domain.SessionStateIdle)
		c.events.SessionError(domain.CodeOf(err), err.Error())
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingFailed)
		return err
	}

	c.events.SessionStateChanged(domain.SessionStateRecording, domain.SessionReasonRecordingStarted)
	return nil
}

// Stop ends the recording and hands the clip to the transcriber in the
// background. The returned channel yields exactly one outcome.
func (c *SessionController) Stop(ctx context.Context, sel domain.Selection) (<-chan domain.Outcome, error) {
	if err := c.transition(domain.SessionStateRecording, domain.SessionStateStopping); err != nil {
		return nil, err
	}
	c.events.SessionStateChanged(domain.SessionStateStopping, domain.SessionReasonRecordingStopped)

	clip, err := c.recorder.Stop(ctx)
	if err != nil {
		c.setState(domain.SessionStateIdle)
		c.events.SessionError(domain.ErrorCodeAudioStop, err.Error())
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonRecordingFailed)
		return nil, err
	}

	c.setState(domain.SessionStateProcessing)
	return c.process(ctx, clip, sel), nil
}

// TranscribeFile transcribes an existing clip. Only valid from Idle.
func (c *SessionController) TranscribeFile(ctx context.Context, path string, sel domain.Selection) (<-chan domain.Outcome, error) {
	if err := c.transition(domain.SessionStateIdle, domain.SessionStateProcessing); err != nil {
		return nil, err
	}

	clip, err := audio.InspectClip(path)
	if err != nil && !errors.Is(err, domain.ErrFormatMismatch) {
		c.setState(domain.SessionStateIdle)
		c.events.SessionError(domain.CodeOf(err), err.Error())
		c.events.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonTranscriptionFailed)
		return nil, err
	}
	// Format problems are left to the backend, which decides whether the
	// clip is acceptable for the selected mode.
	clip.Path = path

	return c.process(ctx, clip, sel), nil
}

// Status returns the current lifecycle state.
func (c *SessionController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Status{State: c.state, Active: c.state != domain.SessionStateIdle}
}

// Wait blocks until every background transcription has finished.
func (c *SessionController) Wait() {
	c.jobs.Wait()
}

func (c *SessionController) process(ctx context.Context, clip domain.AudioClip, sel domain.Selection) <-chan domain.Outcome {
	out := make(chan domain.Outcome, 1)
	c.events.SessionStateChanged(domain.SessionStateProcessing, domain.SessionReasonTranscribing)

	// Detached from the caller's cancellation: in-flight transcriptions are
	// not cancellable, only bounded by the dispatcher policy.
	jobCtx := context.WithoutCancel(ctx)

	c.jobs.Add(1)
	go func() {
		defer c.jobs.Done()
		defer close(out)

		transcript, err := c.transcriber.Transcribe(jobCtx, clip, sel)
		if err != nil {
			c.logger.Error("transcription failed", "clip", clip.Path, "mode", sel.Mode, "language", sel.Language, "err", err)
			c.events.SessionError(domain.CodeOf(err), err.Error())
			c.finish(domain.SessionReasonTranscriptionFailed)
			out <- domain.Outcome{Err: err}
			return
		}

		outcome, reason := c.finalizer.Finalize(jobCtx, transcript)
		c.finish(reason)
		out <- outcome
	}()
	return out
}

func (c *SessionController) finish(reason domain.SessionStateReason) {
	c.setState(domain.SessionStateIdle)
	c.events.SessionStateChanged(domain.SessionStateIdle, reason)
}

func (c *SessionController) transition(from domain.SessionState, to domain.SessionState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == from {
		c.state = to
		return nil
	}
	switch {
	case from == domain.SessionStateRecording:
		return domain.ErrNoActiveSession
	case c.state == domain.SessionStateRecording || c.state == domain.SessionStateStopping:
		return domain.ErrAlreadyRecording
	default:
		return domain.ErrBusy
	}
}

func (c *SessionController) setState(state domain.SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}
