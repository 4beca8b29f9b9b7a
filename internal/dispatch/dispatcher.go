package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"speechdesk/internal/domain"
	"speechdesk/internal/ports"
)

// Policy bounds one backend call.
type Policy struct {
	// Timeout caps a single attempt. Zero means no deadline.
	Timeout time.Duration
	// Retries is the number of extra attempts after ServiceUnavailable.
	Retries int
	Backoff time.Duration
}

// Route binds a backend to its call policy.
type Route struct {
	Backend ports.Backend
	Policy  Policy
}

// Dispatcher picks a backend by mode and normalizes its errors.
type Dispatcher struct {
	routes map[domain.Mode]Route
	logger *log.Logger
	clock  func() time.Time
}

func New(routes map[domain.Mode]Route, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	table := make(map[domain.Mode]Route, len(routes))
	for mode, route := range routes {
		if route.Backend != nil {
			table[mode] = route
		}
	}
	return &Dispatcher{routes: table, logger: logger, clock: time.Now}
}

// Transcribe runs the clip through the backend registered for sel.Mode.
// Every returned error matches one of the domain transcription errors.
func (d *Dispatcher) Transcribe(ctx context.Context, clip domain.AudioClip, sel domain.Selection) (domain.Transcript, error) {
	info, ok := sel.Language.Info()
	if !ok {
		return domain.Transcript{}, fmt.Errorf("%w: unsupported language %q", domain.ErrUnexpectedBackend, sel.Language)
	}
	route, ok := d.routes[sel.Mode]
	if !ok {
		return domain.Transcript{}, fmt.Errorf("%w: no backend configured for %s mode", domain.ErrUnexpectedBackend, sel.Mode)
	}

	started := d.clock()
	text, err := d.call(ctx, route, clip, sel.Language)
	if err != nil {
		d.logger.Warn("transcription failed",
			"mode", sel.Mode, "language", info.Name, "clip", clip.Path, "code", domain.CodeOf(err), "err", err)
		return domain.Transcript{}, err
	}

	transcript := domain.Transcript{
		Text:      strings.TrimSpace(text),
		Language:  sel.Language,
		Mode:      sel.Mode,
		Direction: info.Direction,
		ClipPath:  clip.Path,
		CreatedAt: d.clock(),
	}
	d.logger.Info("transcription finished",
		"mode", sel.Mode, "language", info.Name, "clip", clip.Path, "chars", len(transcript.Text), "took", d.clock().Sub(started))
	return transcript, nil
}

func (d *Dispatcher) call(ctx context.Context, route Route, clip domain.AudioClip, language domain.Language) (string, error) {
	attempts := route.Policy.Retries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := d.attempt(ctx, route, clip, language)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrServiceUnavailable) || attempt == attempts || ctx.Err() != nil {
			break
		}

		d.logger.Info("retrying transcription", "attempt", attempt+1, "of", attempts, "err", err)
		if route.Policy.Backoff > 0 {
			timer := time.NewTimer(route.Policy.Backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return "", classify(ctx.Err())
			}
		}
	}
	return "", lastErr
}

func (d *Dispatcher) attempt(ctx context.Context, route Route, clip domain.AudioClip, language domain.Language) (string, error) {
	callCtx := ctx
	if route.Policy.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, route.Policy.Timeout)
		defer cancel()
	}

	text, err := route.Backend.Transcribe(callCtx, clip, language)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !domain.IsTranscriptionError(err) {
			return "", fmt.Errorf("%w: no response within %s", domain.ErrServiceUnavailable, route.Policy.Timeout)
		}
		return "", classify(err)
	}
	return text, nil
}

func classify(err error) error {
	if err == nil || domain.IsTranscriptionError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUnexpectedBackend, err)
}
