package domain

import "time"

// SessionState models the recording lifecycle.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateRecording  SessionState = "recording"
	SessionStateStopping   SessionState = "stopping"
	SessionStateProcessing SessionState = "processing"
	// SessionStateError is reported only when the app failed to start.
	SessionStateError SessionState = "error"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonReady                          SessionStateReason = "ready"
	SessionReasonRecordingStarted               SessionStateReason = "recording_started"
	SessionReasonRecordingStopped               SessionStateReason = "recording_stopped"
	SessionReasonTranscribing                   SessionStateReason = "transcribing"
	SessionReasonTranscriptReady                SessionStateReason = "transcript_ready"
	SessionReasonTranscriptCopied               SessionStateReason = "transcript_copied"
	SessionReasonTranscriptReadyClipboardFailed SessionStateReason = "transcript_clipboard_failed"
	SessionReasonNoTranscript                   SessionStateReason = "no_transcript"
	SessionReasonRecordingFailed                SessionStateReason = "recording_failed"
	SessionReasonTranscriptionFailed            SessionStateReason = "transcription_failed"
)

// PCMFormat describes the sample layout of a clip.
type PCMFormat struct {
	Channels    int `json:"channels"`
	SampleWidth int `json:"sampleWidth"` // bytes per sample
	SampleRate  int `json:"sampleRate"`
}

// RecordingFormat is the only layout the recorder produces and the offline
// recognizer accepts.
var RecordingFormat = PCMFormat{Channels: 1, SampleWidth: 2, SampleRate: 16000}

// FrameSize is the number of bytes in one frame (one sample per channel).
func (f PCMFormat) FrameSize() int {
	return f.Channels * f.SampleWidth
}

// AudioClip is a recorded or loaded WAV file. It is never modified after
// creation.
type AudioClip struct {
	Path      string    `json:"path"`
	Format    PCMFormat `json:"format"`
	Frames    int       `json:"frames"`
	CreatedAt time.Time `json:"createdAt"`
}

// Duration returns the playback length of the clip.
func (c AudioClip) Duration() time.Duration {
	if c.Format.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames) * time.Second / time.Duration(c.Format.SampleRate)
}

// Selection is the mode and language chosen for one transcription.
type Selection struct {
	Mode     Mode     `json:"mode"`
	Language Language `json:"language"`
}

// Transcript is the text produced for one clip.
type Transcript struct {
	Text      string    `json:"text"`
	Language  Language  `json:"language"`
	Mode      Mode      `json:"mode"`
	Direction Direction `json:"direction"`
	ClipPath  string    `json:"clipPath"`
	CreatedAt time.Time `json:"createdAt"`
}

// Outcome is delivered once per transcription job.
type Outcome struct {
	Transcript Transcript
	Copied     bool
	Err        error
}

// Status summarizes the current runtime status.
type Status struct {
	State   SessionState `json:"state"`
	Active  bool         `json:"active"`
	Message string       `json:"message,omitempty"`
}
