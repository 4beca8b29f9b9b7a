package bootstrap

import (
	"context"
	"errors"
	"io"

	"github.com/charmbracelet/log"

	"speechdesk/internal/audio"
	"speechdesk/internal/config"
	"speechdesk/internal/dispatch"
	"speechdesk/internal/domain"
	"speechdesk/internal/history"
	"speechdesk/internal/ports"
	"speechdesk/internal/providers/deepgram"
	"speechdesk/internal/providers/google"
	"speechdesk/internal/providers/vosk"
	"speechdesk/internal/recorder"
	"speechdesk/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.SessionController
	Config     config.Config
	History    *history.Store
	Logger     *log.Logger

	closers []io.Closer
}

// Close waits for in-flight transcriptions and releases resources.
func (s Services) Close() error {
	if s.Controller != nil {
		s.Controller.Wait()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build wires all backend dependencies for the given configuration.
func Build(ctx context.Context, cfg config.Config, logger *log.Logger, eventSink ports.EventSink, clipboard ports.Clipboard) (Services, error) {
	if logger == nil {
		logger = log.Default()
	}

	store, err := openHistory(ctx, cfg.History, logger)
	if err != nil {
		return Services{}, err
	}
	services := Services{Config: cfg, History: store, Logger: logger, closers: []io.Closer{store}}

	rec := recorder.New(
		audio.NewFFMPEGCapture(cfg.Recording.FFmpegCommand),
		recorder.Config{
			Audio: ports.AudioConfig{
				InputFormat: cfg.Recording.InputFormat,
				InputDevice: cfg.Recording.InputDevice,
			},
			Directory:     cfg.Recording.Directory,
			FramesPerRead: cfg.Recording.FramesPerRead,
		},
		logger.WithPrefix("recorder"),
	)

	engine := vosk.NewEngine()
	if closer, ok := engine.(io.Closer); ok {
		services.closers = append(services.closers, closer)
	}
	if !vosk.Available() {
		logger.Warn("offline recognition unavailable: built without the vosk tag")
	}

	dispatcher := dispatch.New(map[domain.Mode]dispatch.Route{
		domain.ModeOnline: {
			Backend: onlineBackend(cfg, logger),
			Policy: dispatch.Policy{
				Timeout: cfg.Online.Timeout(),
				Retries: cfg.Online.Retries,
				Backoff: cfg.Online.Backoff(),
			},
		},
		domain.ModeOffline: {
			Backend: vosk.NewBackend(engine, vosk.Config{
				Models:      cfg.Offline.Models(),
				ChunkFrames: cfg.Offline.ChunkFrames,
			}, logger.WithPrefix("vosk")),
		},
	}, logger.WithPrefix("dispatch"))

	services.Controller = usecase.NewSessionController(
		rec,
		dispatcher,
		store,
		clipboard,
		eventSink,
		logger.WithPrefix("session"),
		usecase.Config{AutoCopy: cfg.UI.AutoCopy},
	)
	return services, nil
}

func onlineBackend(cfg config.Config, logger *log.Logger) ports.Backend {
	switch cfg.Online.Provider {
	case "deepgram":
		provider := deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			SmartFormat: cfg.Deepgram.SmartFormat,
		})
		return deepgram.NewClipBackend(provider, cfg.Deepgram.ChunkSize, logger.WithPrefix("deepgram"))
	default:
		return google.NewBackend(google.Config{
			APIKey:   cfg.Google.APIKey,
			Endpoint: cfg.Google.Endpoint,
			Model:    cfg.Google.Model,
		}, logger.WithPrefix("google"))
	}
}

func openHistory(ctx context.Context, cfg config.HistoryConfig, logger *log.Logger) (*history.Store, error) {
	path := cfg.Path
	if !cfg.Enabled {
		path = ""
	}
	return history.Open(ctx, path, logger.WithPrefix("history"))
}
