package vosk

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"speechdesk/internal/audio"
	"speechdesk/internal/domain"
)

func TestBackendStreamsChunksAndJoinsSegmentsInOrder(t *testing.T) {
	t.Parallel()

	clip := writeClip(t, 10000)
	engine := &fakeEngine{rec: &fakeRecognizer{
		finalizeOn: map[int]string{1: `{"text": " hello there "}`},
		final:      `{"text": "general kenobi"}`,
	}}
	backend := newTestBackend(t, engine)

	text, err := backend.Transcribe(context.Background(), clip, domain.LanguageEnglish)
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if text != "hello there general kenobi" {
		t.Fatalf("unexpected transcript: %q", text)
	}

	sizes := engine.rec.chunkSizes
	if len(sizes) != 3 || sizes[0] != 8000 || sizes[1] != 8000 || sizes[2] != 4000 {
		t.Fatalf("unexpected chunk sizes: %v", sizes)
	}
	if engine.sampleRate != 16000 || !engine.rec.closed {
		t.Fatalf("recognizer not created at 16kHz or not closed: rate=%v closed=%v", engine.sampleRate, engine.rec.closed)
	}
}

func TestBackendSilentClipYieldsEmptyTranscript(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{rec: &fakeRecognizer{final: `{"text": ""}`}}
	backend := newTestBackend(t, engine)

	text, err := backend.Transcribe(context.Background(), writeClip(t, 16000), domain.LanguageEnglish)
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty transcript, got %q", text)
	}
}

func TestBackendZeroLengthClip(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{rec: &fakeRecognizer{final: `{"text" : ""}`}}
	backend := newTestBackend(t, engine)

	text, err := backend.Transcribe(context.Background(), writeClip(t, 0), domain.LanguagePersian)
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if text != "" || len(engine.rec.chunkSizes) != 0 {
		t.Fatalf("expected empty transcript without chunks, got %q %v", text, engine.rec.chunkSizes)
	}
}

func TestBackendRejectsNonConformingClips(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		channels int
		rate     int
		depth    int
	}{
		{"stereo", 2, 16000, 16},
		{"8kHz", 1, 8000, 16},
		{"8-bit", 1, 16000, 8},
		{"44.1kHz stereo", 2, 44100, 16},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			engine := &fakeEngine{rec: &fakeRecognizer{final: `{"text": "should not appear"}`}}
			backend := newTestBackend(t, engine)

			path := writeRawWAV(t, tc.channels, tc.rate, tc.depth, 400)
			text, err := backend.Transcribe(context.Background(), domain.AudioClip{Path: path}, domain.LanguageEnglish)
			if !errors.Is(err, domain.ErrFormatMismatch) {
				t.Fatalf("expected format mismatch, got %v", err)
			}
			if text != "" {
				t.Fatalf("expected no partial transcript, got %q", text)
			}
			if engine.created {
				t.Fatalf("recognizer must not be created for mismatched clips")
			}
		})
	}
}

func TestBackendModelNotFoundBeforeReadingClip(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{rec: &fakeRecognizer{}}
	missingClip := domain.AudioClip{Path: filepath.Join(t.TempDir(), "never-created.wav")}

	unset := NewBackend(engine, Config{Models: map[domain.Language]string{}}, log.New(io.Discard))
	if _, err := unset.Transcribe(context.Background(), missingClip, domain.LanguagePersian); !errors.Is(err, domain.ErrModelNotFound) {
		t.Fatalf("expected model not found for unset path, got %v", err)
	}

	absent := NewBackend(engine, Config{Models: map[domain.Language]string{
		domain.LanguagePersian: filepath.Join(t.TempDir(), "vosk-model-small-fa-0.42"),
	}}, log.New(io.Discard))
	if _, err := absent.Transcribe(context.Background(), missingClip, domain.LanguagePersian); !errors.Is(err, domain.ErrModelNotFound) {
		t.Fatalf("expected model not found for absent path, got %v", err)
	}
	if engine.created {
		t.Fatalf("engine must not be touched without a model")
	}
}

func TestBackendEngineFailureIsUnexpected(t *testing.T) {
	t.Parallel()

	backend := newTestBackend(t, &fakeEngine{err: errors.New("bad model")})
	_, err := backend.Transcribe(context.Background(), writeClip(t, 10), domain.LanguageEnglish)
	if !errors.Is(err, domain.ErrUnexpectedBackend) {
		t.Fatalf("expected unexpected backend error, got %v", err)
	}
}

func TestResultText(t *testing.T) {
	t.Parallel()

	if got := resultText(`{"text": "  salaam  "}`); got != "salaam" {
		t.Fatalf("unexpected text: %q", got)
	}
	if got := resultText("not json"); got != "" {
		t.Fatalf("expected empty text for invalid json, got %q", got)
	}
}

func newTestBackend(t *testing.T, engine Engine) *Backend {
	t.Helper()
	modelDir := t.TempDir()
	return NewBackend(engine, Config{Models: map[domain.Language]string{
		domain.LanguageEnglish: modelDir,
		domain.LanguagePersian: modelDir,
	}}, log.New(io.Discard))
}

func writeClip(t *testing.T, frames int) domain.AudioClip {
	t.Helper()
	clip, err := audio.WriteClip(filepath.Join(t.TempDir(), "clip.wav"), make([]byte, frames*2), domain.RecordingFormat)
	if err != nil {
		t.Fatalf("write clip failed: %v", err)
	}
	return clip
}

func writeRawWAV(t *testing.T, channels int, rate int, depth int, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raw.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer file.Close()

	enc := wav.NewEncoder(file, rate, depth, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           make([]int, frames*channels),
		SourceBitDepth: depth,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	return path
}

type fakeEngine struct {
	rec        *fakeRecognizer
	err        error
	created    bool
	sampleRate float64
}

func (f *fakeEngine) NewRecognizer(_ string, sampleRate float64) (Recognizer, error) {
	f.created = true
	f.sampleRate = sampleRate
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

type fakeRecognizer struct {
	finalizeOn map[int]string
	final      string
	chunkSizes []int
	pending    string
	closed     bool
}

func (f *fakeRecognizer) AcceptWaveform(pcm []byte) (bool, error) {
	f.chunkSizes = append(f.chunkSizes, len(pcm))
	if result, ok := f.finalizeOn[len(f.chunkSizes)]; ok {
		f.pending = result
		return true, nil
	}
	return false, nil
}

func (f *fakeRecognizer) Result() string      { return f.pending }
func (f *fakeRecognizer) FinalResult() string { return f.final }
func (f *fakeRecognizer) Close()              { f.closed = true }
