package main

import (
	"github.com/charmbracelet/log"

	"speechdesk/internal/domain"
)

// logSink reports session events through the logger.
type logSink struct {
	logger *log.Logger
}

func (s logSink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	s.logger.Debug("session", "state", state, "reason", reason)
}

func (s logSink) TranscriptReady(t domain.Transcript) {
	s.logger.Debug("transcript ready", "clip", t.ClipPath, "language", t.Language, "chars", len(t.Text))
}

func (s logSink) SessionError(code domain.ErrorCode, detail string) {
	s.logger.Error("session error", "code", code, "detail", detail)
}
