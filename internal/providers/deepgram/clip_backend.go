package deepgram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"speechdesk/internal/audio"
	"speechdesk/internal/domain"
	"speechdesk/internal/ports"
)

const defaultChunkSize = 4096

// ClipBackend implements ports.Backend by streaming a recorded clip through
// a live Deepgram session and keeping the finalized text.
type ClipBackend struct {
	provider  ports.StreamingProvider
	chunkSize int
	logger    *log.Logger
}

func NewClipBackend(provider ports.StreamingProvider, chunkSize int, logger *log.Logger) *ClipBackend {
	if chunkSize < 256 {
		chunkSize = defaultChunkSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ClipBackend{provider: provider, chunkSize: chunkSize, logger: logger}
}

func (b *ClipBackend) Transcribe(ctx context.Context, clip domain.AudioClip, language domain.Language) (string, error) {
	pcm, format, err := audio.ReadPCM16(clip.Path)
	if err != nil {
		if errors.Is(err, domain.ErrFormatMismatch) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrUnexpectedBackend, err)
	}
	if len(pcm) == 0 {
		return "", fmt.Errorf("%w: clip %s is empty", domain.ErrUnintelligibleAudio, clip.Path)
	}

	session, err := b.provider.StartStreaming(ctx, ports.StreamingConfig{
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Encoding:   "linear16",
		Language:   language.OnlineCode(),
	})
	if err != nil {
		return "", err
	}
	defer session.Close()

	collected := make(chan []string, 1)
	go collectSegments(session, collected)

	sendErr := pumpClip(pcm, session, b.chunkSize)
	_ = session.CloseSend()
	streamErr := waitForStream(ctx, session)
	segments := <-collected

	// A failed stream may have delivered only part of the clip, so its
	// segments are discarded.
	if err := firstErr(sendErr, streamErr); err != nil {
		if len(segments) > 0 {
			b.logger.Warn("deepgram stream failed mid-clip", "segments", len(segments), "err", err)
		}
		if domain.IsTranscriptionError(err) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	if len(segments) == 0 {
		return "", domain.ErrUnintelligibleAudio
	}
	b.logger.Debug("deepgram transcript assembled", "segments", len(segments))
	return strings.Join(segments, " "), nil
}

func pumpClip(pcm []byte, stream ports.StreamingSession, chunkSize int) error {
	for offset := 0; offset < len(pcm); offset += chunkSize {
		end := offset + chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := stream.SendAudio(pcm[offset:end]); err != nil {
			return fmt.Errorf("failed to stream audio: %w", err)
		}
	}
	return nil
}

func waitForStream(ctx context.Context, session ports.StreamingSession) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = session.Close()
		<-done
		return ctx.Err()
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// collectSegments drains every segment until the session closes the channel.
func collectSegments(session ports.StreamingSession, out chan<- []string) {
	var segments []string
	for text := range session.Segments() {
		if text = strings.TrimSpace(text); text != "" {
			segments = append(segments, text)
		}
	}
	out <- segments
}
