package vosk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"speechdesk/internal/audio"
	"speechdesk/internal/domain"
)

// DefaultChunkFrames is the number of frames fed to the recognizer per call.
const DefaultChunkFrames = 4000

// Recognizer is a streaming recognizer bound to one model.
type Recognizer interface {
	// AcceptWaveform feeds PCM and reports whether a segment was finalized.
	AcceptWaveform(pcm []byte) (bool, error)
	Result() string
	FinalResult() string
	Close()
}

// Engine loads models and creates recognizers.
type Engine interface {
	NewRecognizer(modelPath string, sampleRate float64) (Recognizer, error)
}

// Config maps languages to model directories.
type Config struct {
	Models      map[domain.Language]string
	ChunkFrames int
}

// Backend transcribes clips locally.
type Backend struct {
	engine Engine
	cfg    Config
	logger *log.Logger
}

func NewBackend(engine Engine, cfg Config, logger *log.Logger) *Backend {
	if cfg.ChunkFrames <= 0 {
		cfg.ChunkFrames = DefaultChunkFrames
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Backend{engine: engine, cfg: cfg, logger: logger}
}

// ModelPath returns the configured model directory for language.
func (b *Backend) ModelPath(language domain.Language) string {
	return strings.TrimSpace(b.cfg.Models[language])
}

// Transcribe streams the clip through a recognizer. Segments finalized
// mid-stream come first in order, followed by the final flush result.
func (b *Backend) Transcribe(ctx context.Context, clip domain.AudioClip, language domain.Language) (string, error) {
	modelPath := b.ModelPath(language)
	if modelPath == "" {
		return "", fmt.Errorf("%w: no model configured for %s", domain.ErrModelNotFound, language)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrModelNotFound, modelPath)
	}

	reader, err := audio.OpenClip(clip.Path)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	if format := reader.Format(); format != domain.RecordingFormat {
		return "", fmt.Errorf("%w: got %d channel(s), %d-bit, %d Hz",
			domain.ErrFormatMismatch, format.Channels, format.SampleWidth*8, format.SampleRate)
	}

	recognizer, err := b.engine.NewRecognizer(modelPath, float64(domain.RecordingFormat.SampleRate))
	if err != nil {
		return "", fmt.Errorf("%w: load model %s: %v", domain.ErrUnexpectedBackend, modelPath, err)
	}
	defer recognizer.Close()

	var segments []string
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		chunk, err := reader.ReadFrames(b.cfg.ChunkFrames)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrUnexpectedBackend, err)
		}

		final, err := recognizer.AcceptWaveform(chunk)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrUnexpectedBackend, err)
		}
		if final {
			segments = appendSegment(segments, recognizer.Result())
		}
	}
	segments = appendSegment(segments, recognizer.FinalResult())

	b.logger.Debug("offline decode finished", "model", modelPath, "frames", reader.Frames(), "segments", len(segments))
	return strings.Join(segments, " "), nil
}

func appendSegment(segments []string, payload string) []string {
	if text := resultText(payload); text != "" {
		return append(segments, text)
	}
	return segments
}

type recognizerResult struct {
	Text string `json:"text"`
}

func resultText(payload string) string {
	var result recognizerResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return ""
	}
	return strings.TrimSpace(result.Text)
}
