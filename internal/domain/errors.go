package domain

import "errors"

var (
	ErrDeviceUnavailable   = errors.New("audio input device unavailable")
	ErrFormatMismatch      = errors.New("audio file must be mono 16-bit PCM at 16kHz")
	ErrModelNotFound       = errors.New("offline model not found")
	ErrUnintelligibleAudio = errors.New("speech recognition could not understand audio")
	ErrServiceUnavailable  = errors.New("speech recognition service unavailable")
	ErrUnexpectedBackend   = errors.New("unexpected speech recognition error")

	ErrAlreadyRecording = errors.New("a recording is already in progress")
	ErrNoActiveSession  = errors.New("no active recording session")
	ErrBusy             = errors.New("a transcription is in progress")
)

// ErrorCode identifies errors surfaced to the user.
type ErrorCode string

const (
	ErrorCodeStartup        ErrorCode = "startup"
	ErrorCodeDevice         ErrorCode = "device"
	ErrorCodeAudioStop      ErrorCode = "audio_stop"
	ErrorCodeFormat         ErrorCode = "format_mismatch"
	ErrorCodeModelNotFound  ErrorCode = "model_not_found"
	ErrorCodeUnintelligible ErrorCode = "unintelligible_audio"
	ErrorCodeUnavailable    ErrorCode = "service_unavailable"
	ErrorCodeBackend        ErrorCode = "backend"
	ErrorCodeSession        ErrorCode = "session"
	ErrorCodeClipboard      ErrorCode = "clipboard"
	ErrorCodeHistory        ErrorCode = "history"
)

var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrDeviceUnavailable, ErrorCodeDevice},
	{ErrFormatMismatch, ErrorCodeFormat},
	{ErrModelNotFound, ErrorCodeModelNotFound},
	{ErrUnintelligibleAudio, ErrorCodeUnintelligible},
	{ErrServiceUnavailable, ErrorCodeUnavailable},
	{ErrUnexpectedBackend, ErrorCodeBackend},
	{ErrAlreadyRecording, ErrorCodeSession},
	{ErrNoActiveSession, ErrorCodeSession},
	{ErrBusy, ErrorCodeSession},
}

// CodeOf maps err to the code the shells render. Unknown errors are backend
// errors.
func CodeOf(err error) ErrorCode {
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return ErrorCodeBackend
}

// IsTranscriptionError reports whether err already belongs to the
// transcription taxonomy.
func IsTranscriptionError(err error) bool {
	for _, target := range []error{
		ErrFormatMismatch,
		ErrModelNotFound,
		ErrUnintelligibleAudio,
		ErrServiceUnavailable,
		ErrUnexpectedBackend,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
