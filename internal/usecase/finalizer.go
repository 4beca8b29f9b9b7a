package usecase

import (
	"context"

	"github.com/charmbracelet/log"

	"speechdesk/internal/domain"
	"speechdesk/internal/ports"
)

type transcriptFinalizer struct {
	history   ports.HistoryStore
	clipboard ports.Clipboard
	events    ports.EventSink
	logger    *log.Logger
	autoCopy  bool
}

func newTranscriptFinalizer(history ports.HistoryStore, clipboard ports.Clipboard, events ports.EventSink, logger *log.Logger, autoCopy bool) transcriptFinalizer {
	return transcriptFinalizer{history: history, clipboard: clipboard, events: events, logger: logger, autoCopy: autoCopy}
}

// Finalize records and publishes a transcript. History and clipboard
// failures are reported but never fail the transcription.
func (f transcriptFinalizer) Finalize(ctx context.Context, transcript domain.Transcript) (domain.Outcome, domain.SessionStateReason) {
	outcome := domain.Outcome{Transcript: transcript}

	if transcript.Text == "" {
		f.events.TranscriptReady(transcript)
		return outcome, domain.SessionReasonNoTranscript
	}

	if f.history != nil {
		if err := f.history.Save(ctx, transcript); err != nil {
			f.logger.Warn("failed to save transcript", "err", err)
			f.events.SessionError(domain.ErrorCodeHistory, err.Error())
		}
	}

	f.events.TranscriptReady(transcript)

	if !f.autoCopy || f.clipboard == nil {
		return outcome, domain.SessionReasonTranscriptReady
	}
	if err := f.clipboard.SetText(ctx, transcript.Text); err != nil {
		f.events.SessionError(domain.ErrorCodeClipboard, "transcript ready but clipboard write failed")
		return outcome, domain.SessionReasonTranscriptReadyClipboardFailed
	}
	outcome.Copied = true
	return outcome, domain.SessionReasonTranscriptCopied
}
