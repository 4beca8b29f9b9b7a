package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/wailsapp/wails/v2/pkg/runtime"

	"speechdesk/internal/bootstrap"
	"speechdesk/internal/config"
	"speechdesk/internal/domain"
	"speechdesk/internal/logging"
	"speechdesk/internal/providers/vosk"
	"speechdesk/internal/usecase"
)

const (
	eventSession    = "speechdesk:session"
	eventTranscript = "speechdesk:transcript"
	eventError      = "speechdesk:error"
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	services   bootstrap.Services
	controller *usecase.SessionController
	cfg        config.Config
	logger     *log.Logger
	logCloser  io.Closer
	bootErr    error
}

func NewApp() *App {
	return &App{logger: logging.Discard()}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	cfg, err := config.Load("")
	if err != nil {
		a.fail(err)
		return
	}
	logger, closer, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		a.fail(err)
		return
	}

	services, err := bootstrap.Build(ctx, cfg, logger, a, &wailsClipboard{})
	if err != nil {
		closer.Close()
		a.fail(err)
		return
	}

	a.cfg = cfg
	a.logger = logger
	a.logCloser = closer
	a.services = services
	a.controller = services.Controller
	a.logger.Info("speechdesk ready", "config", cfg.Path, "online", cfg.Online.Provider, "offline", vosk.Available())
	a.SessionStateChanged(domain.SessionStateIdle, domain.SessionReasonReady)
}

func (a *App) shutdown(_ context.Context) {
	if a.controller == nil {
		return
	}
	if err := a.services.Close(); err != nil {
		a.logger.Warn("shutdown incomplete", "err", err)
	}
	a.logCloser.Close()
}

func (a *App) fail(err error) {
	a.bootErr = err
	a.SessionError(domain.ErrorCodeStartup, err.Error())
}

// StartRecording begins capturing from the default microphone.
func (a *App) StartRecording() (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	if err := a.controller.Start(a.ctx); err != nil {
		if !errors.Is(err, domain.ErrDeviceUnavailable) {
			a.SessionError(domain.CodeOf(err), err.Error())
		}
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// StopRecording ends the recording and transcribes it with the chosen mode
// and language. The transcript arrives as a speechdesk:transcript event.
func (a *App) StopRecording(mode string, language string) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	sel, err := domain.ParseSelection(mode, language)
	if err != nil {
		return domain.Status{}, err
	}
	if _, err := a.controller.Stop(a.ctx, sel); err != nil {
		if errors.Is(err, domain.ErrNoActiveSession) {
			a.SessionError(domain.ErrorCodeSession, err.Error())
		}
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// TranscribeFile asks for a WAV file and transcribes it. It returns the
// chosen path, or "" when the dialog was cancelled.
func (a *App) TranscribeFile(mode string, language string) (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}
	sel, err := domain.ParseSelection(mode, language)
	if err != nil {
		return "", err
	}
	if status := a.controller.Status(); status.Active {
		err := domain.ErrBusy
		if status.State == domain.SessionStateRecording {
			err = domain.ErrAlreadyRecording
		}
		a.SessionError(domain.ErrorCodeSession, err.Error())
		return "", err
	}

	path, err := runtime.OpenFileDialog(a.ctx, runtime.OpenDialogOptions{
		Title:            "Choose a recording",
		DefaultDirectory: absDir(a.cfg.Recording.Directory),
		Filters: []runtime.FileFilter{
			{DisplayName: "WAV audio (*.wav)", Pattern: "*.wav"},
		},
	})
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", nil
	}

	if _, err := a.controller.TranscribeFile(a.ctx, path, sel); err != nil {
		if errors.Is(err, domain.ErrAlreadyRecording) || errors.Is(err, domain.ErrBusy) {
			a.SessionError(domain.ErrorCodeSession, err.Error())
		}
		return "", err
	}
	return path, nil
}

// CopyTranscript writes text into the system clipboard.
func (a *App) CopyTranscript(text string) error {
	if a.ctx == nil {
		return fmt.Errorf("application is not initialized")
	}
	if err := runtime.ClipboardSetText(a.ctx, text); err != nil {
		a.SessionError(domain.ErrorCodeClipboard, err.Error())
		return err
	}
	return nil
}

// ListLanguages returns the supported languages in display order.
func (a *App) ListLanguages() []domain.LanguageInfo {
	return domain.Languages()
}

// GetStatus returns the current session status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		if a.bootErr != nil {
			return domain.Status{State: domain.SessionStateError, Active: false, Message: a.bootErr.Error()}
		}
		return domain.Status{State: domain.SessionStateIdle, Active: false}
	}
	return a.controller.Status()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	info := map[string]string{
		"onlineProvider":   a.cfg.Online.Provider,
		"defaultMode":      a.cfg.UI.DefaultMode,
		"defaultLanguage":  a.cfg.UI.DefaultLanguage,
		"recordings":       a.cfg.Recording.Directory,
		"audioInput":       a.cfg.Recording.InputDevice,
		"audioInputFormat": a.cfg.Recording.InputFormat,
		"englishModel":     a.cfg.Offline.EnglishModel,
		"persianModel":     a.cfg.Offline.PersianModel,
		"offlineAvailable": fmt.Sprint(vosk.Available()),
		"autoCopy":         fmt.Sprint(a.cfg.UI.AutoCopy),
	}
	switch a.cfg.Online.Provider {
	case "deepgram":
		info["onlineModel"] = a.cfg.Deepgram.Model
	default:
		info["onlineModel"] = a.cfg.Google.Model
	}
	return info
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// SessionStateChanged emits session lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

// TranscriptReady emits a finished transcript.
func (a *App) TranscriptReady(transcript domain.Transcript) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventTranscript, transcriptPayload(transcript))
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func transcriptPayload(t domain.Transcript) map[string]string {
	return map[string]string{
		"text":      t.Text,
		"language":  string(t.Language),
		"mode":      string(t.Mode),
		"direction": string(t.Direction),
		"clipPath":  t.ClipPath,
	}
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonRecordingStarted:
		return "Recording..."
	case domain.SessionReasonRecordingStopped:
		return "Recording stopped"
	case domain.SessionReasonTranscribing:
		return "Transcribing..."
	case domain.SessionReasonTranscriptReady:
		return "Transcript ready"
	case domain.SessionReasonTranscriptCopied:
		return "Transcript copied to clipboard"
	case domain.SessionReasonTranscriptReadyClipboardFailed:
		return "Transcript ready (clipboard write failed)"
	case domain.SessionReasonNoTranscript:
		return "No speech detected"
	case domain.SessionReasonRecordingFailed:
		return "Recording failed"
	case domain.SessionReasonTranscriptionFailed:
		return "Transcription failed"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeDevice:
		return "Microphone unavailable"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeFormat:
		return "Audio must be mono 16-bit 16 kHz WAV for offline mode"
	case domain.ErrorCodeModelNotFound:
		return "Offline model not found"
	case domain.ErrorCodeUnintelligible:
		return "Could not understand audio"
	case domain.ErrorCodeUnavailable:
		return "Speech service unavailable"
	case domain.ErrorCodeBackend:
		return "Transcription error"
	case domain.ErrorCodeSession:
		return "Busy: finish the current recording first"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	case domain.ErrorCodeHistory:
		return "Could not save transcript history"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

func absDir(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return ""
	}
	return abs
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}
