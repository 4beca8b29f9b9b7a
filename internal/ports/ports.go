package ports

import (
	"context"
	"io"

	"speechdesk/internal/domain"
)

// AudioConfig describes how the microphone should be captured.
type AudioConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string
	InputDevice string
}

// AudioSession is a live capture session producing raw s16le PCM.
type AudioSession interface {
	io.ReadCloser
	Stop() error
}

// AudioCapture creates microphone capture sessions.
type AudioCapture interface {
	Start(ctx context.Context, cfg AudioConfig) (AudioSession, error)
}

// StreamingConfig describes the audio pushed into a streaming session.
type StreamingConfig struct {
	SampleRate int
	Channels   int
	Encoding   string
	Language   string
}

// StreamingSession is an open provider session. Segments yields every
// finalized text segment in order and is closed once the provider is done.
type StreamingSession interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Segments() <-chan string
	Wait() error
	Close() error
}

// StreamingProvider starts streaming transcription sessions.
type StreamingProvider interface {
	StartStreaming(ctx context.Context, cfg StreamingConfig) (StreamingSession, error)
}

// Backend converts one clip into text. Errors belong to the domain
// transcription taxonomy.
type Backend interface {
	Transcribe(ctx context.Context, clip domain.AudioClip, language domain.Language) (string, error)
}

// Recorder captures one clip at a time.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (domain.AudioClip, error)
}

// Transcriber dispatches a clip to the backend chosen by the selection.
type Transcriber interface {
	Transcribe(ctx context.Context, clip domain.AudioClip, sel domain.Selection) (domain.Transcript, error)
}

// HistoryStore persists produced transcripts.
type HistoryStore interface {
	Save(ctx context.Context, transcript domain.Transcript) error
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits backend state/events to the presentation shell.
type EventSink interface {
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	TranscriptReady(transcript domain.Transcript)
	SessionError(code domain.ErrorCode, detail string)
}
