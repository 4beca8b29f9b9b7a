package main

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"speechdesk/internal/bootstrap"
	"speechdesk/internal/config"
	"speechdesk/internal/domain"
	"speechdesk/internal/logging"
)

type rootOptions struct {
	mode       string
	language   string
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "speechdesk",
		Short:         "Record or load speech and transcribe it to text",
		Long:          `speechdesk records from the microphone or reads a WAV file and transcribes it in English or Persian, online or with a local model.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.mode, "mode", "", "transcription mode: online or offline (default from config)")
	flags.StringVar(&opts.language, "language", "", "transcript language: en, fa, English, Persian (default from config)")
	flags.StringVar(&opts.configPath, "config", "", "config file (default $SPEECHDESK_CONFIG or ~/.config/speechdesk/config.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	cmd.AddCommand(
		newRecordCmd(opts),
		newTranscribeCmd(opts),
		newHistoryCmd(opts),
	)
	return cmd
}

// runtimeEnv is what every subcommand needs once config is resolved.
type runtimeEnv struct {
	cfg       config.Config
	logger    *log.Logger
	services  bootstrap.Services
	selection domain.Selection
	logCloser io.Closer
}

func (e *runtimeEnv) Close() {
	if err := e.services.Close(); err != nil {
		e.logger.Warn("shutdown incomplete", "err", err)
	}
	e.logCloser.Close()
}

func (o *rootOptions) load(ctx context.Context, stderr io.Writer) (*runtimeEnv, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	// The terminal prints the transcript; there is no clipboard to write.
	cfg.UI.AutoCopy = false

	sel, err := o.selection(cfg)
	if err != nil {
		return nil, err
	}

	logger, closer, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}

	services, err := bootstrap.Build(ctx, cfg, logger, logSink{logger: logger}, nil)
	if err != nil {
		closer.Close()
		return nil, err
	}
	return &runtimeEnv{cfg: cfg, logger: logger, services: services, selection: sel, logCloser: closer}, nil
}

func (o *rootOptions) selection(cfg config.Config) (domain.Selection, error) {
	sel, err := cfg.UI.DefaultSelection()
	if err != nil {
		return domain.Selection{}, err
	}
	if o.mode != "" {
		if sel.Mode, err = domain.ParseMode(o.mode); err != nil {
			return domain.Selection{}, fmt.Errorf("--mode: %w", err)
		}
	}
	if o.language != "" {
		if sel.Language, err = domain.ParseLanguage(o.language); err != nil {
			return domain.Selection{}, fmt.Errorf("--language: %w", err)
		}
	}
	return sel, nil
}
