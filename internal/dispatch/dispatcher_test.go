package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"speechdesk/internal/domain"
)

func TestDispatcherRoutesByMode(t *testing.T) {
	t.Parallel()

	online := &fakeBackend{results: []result{{text: " hello "}}}
	offline := &fakeBackend{results: []result{{text: "salaam"}}}
	d := New(map[domain.Mode]Route{
		domain.ModeOnline:  {Backend: online},
		domain.ModeOffline: {Backend: offline},
	}, log.New(io.Discard))

	clip := domain.AudioClip{Path: "a.wav", Format: domain.RecordingFormat}
	transcript, err := d.Transcribe(context.Background(), clip, domain.Selection{Mode: domain.ModeOnline, Language: domain.LanguageEnglish})
	if err != nil {
		t.Fatalf("online failed: %v", err)
	}
	if transcript.Text != "hello" || transcript.Mode != domain.ModeOnline || transcript.ClipPath != "a.wav" {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}
	if transcript.Direction != domain.DirectionLTR {
		t.Fatalf("unexpected direction: %s", transcript.Direction)
	}

	transcript, err = d.Transcribe(context.Background(), clip, domain.Selection{Mode: domain.ModeOffline, Language: domain.LanguagePersian})
	if err != nil {
		t.Fatalf("offline failed: %v", err)
	}
	if transcript.Text != "salaam" || transcript.Direction != domain.DirectionRTL {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}

	if online.callCount() != 1 || offline.callCount() != 1 {
		t.Fatalf("unexpected call counts: online=%d offline=%d", online.callCount(), offline.callCount())
	}
	if offline.lastLanguage() != domain.LanguagePersian {
		t.Fatalf("language not passed to backend")
	}
}

func TestDispatcherTaxonomyPassesThrough(t *testing.T) {
	t.Parallel()

	for _, target := range []error{
		domain.ErrUnintelligibleAudio,
		domain.ErrServiceUnavailable,
		domain.ErrUnexpectedBackend,
		domain.ErrModelNotFound,
		domain.ErrFormatMismatch,
	} {
		target := target
		t.Run(target.Error(), func(t *testing.T) {
			t.Parallel()
			backend := &fakeBackend{results: []result{{err: fmt.Errorf("backend: %w", target)}}}
			d := New(map[domain.Mode]Route{domain.ModeOnline: {Backend: backend}}, log.New(io.Discard))
			_, err := d.Transcribe(context.Background(), domain.AudioClip{}, domain.Selection{Mode: domain.ModeOnline, Language: domain.LanguageEnglish})
			if !errors.Is(err, target) {
				t.Fatalf("expected %v, got %v", target, err)
			}
		})
	}
}

func TestDispatcherWrapsUnknownErrors(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{results: []result{{err: errors.New("segfault-ish")}}}
	d := New(map[domain.Mode]Route{domain.ModeOffline: {Backend: backend}}, log.New(io.Discard))

	_, err := d.Transcribe(context.Background(), domain.AudioClip{}, domain.Selection{Mode: domain.ModeOffline, Language: domain.LanguageEnglish})
	if !errors.Is(err, domain.ErrUnexpectedBackend) {
		t.Fatalf("expected unexpected backend error, got %v", err)
	}
}

func TestDispatcherMissingRouteAndLanguage(t *testing.T) {
	t.Parallel()

	d := New(map[domain.Mode]Route{domain.ModeOnline: {Backend: nil}}, log.New(io.Discard))
	_, err := d.Transcribe(context.Background(), domain.AudioClip{}, domain.Selection{Mode: domain.ModeOnline, Language: domain.LanguageEnglish})
	if !errors.Is(err, domain.ErrUnexpectedBackend) {
		t.Fatalf("expected missing route error, got %v", err)
	}

	_, err = d.Transcribe(context.Background(), domain.AudioClip{}, domain.Selection{Mode: domain.ModeOnline, Language: "de"})
	if !errors.Is(err, domain.ErrUnexpectedBackend) {
		t.Fatalf("expected unsupported language error, got %v", err)
	}
}

func TestDispatcherRetriesOnlyServiceUnavailable(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{results: []result{
		{err: domain.ErrServiceUnavailable},
		{err: domain.ErrServiceUnavailable},
		{text: "third time"},
	}}
	d := New(map[domain.Mode]Route{
		domain.ModeOnline: {Backend: backend, Policy: Policy{Retries: 2, Backoff: time.Millisecond}},
	}, log.New(io.Discard))

	transcript, err := d.Transcribe(context.Background(), domain.AudioClip{}, domain.Selection{Mode: domain.ModeOnline, Language: domain.LanguageEnglish})
	if err != nil {
		t.Fatalf("expected retry success, got %v", err)
	}
	if transcript.Text != "third time" || backend.callCount() != 3 {
		t.Fatalf("unexpected result %q after %d calls", transcript.Text, backend.callCount())
	}

	unintelligible := &fakeBackend{results: []result{{err: domain.ErrUnintelligibleAudio}, {text: "never"}}}
	d = New(map[domain.Mode]Route{
		domain.ModeOnline: {Backend: unintelligible, Policy: Policy{Retries: 3}},
	}, log.New(io.Discard))
	_, err = d.Transcribe(context.Background(), domain.AudioClip{}, domain.Selection{Mode: domain.ModeOnline, Language: domain.LanguageEnglish})
	if !errors.Is(err, domain.ErrUnintelligibleAudio) || unintelligible.callCount() != 1 {
		t.Fatalf("unintelligible audio must not be retried: err=%v calls=%d", err, unintelligible.callCount())
	}
}

func TestDispatcherTimeoutIsServiceUnavailable(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{block: true}
	d := New(map[domain.Mode]Route{
		domain.ModeOnline: {Backend: backend, Policy: Policy{Timeout: 10 * time.Millisecond}},
	}, log.New(io.Discard))

	_, err := d.Transcribe(context.Background(), domain.AudioClip{}, domain.Selection{Mode: domain.ModeOnline, Language: domain.LanguageEnglish})
	if !errors.Is(err, domain.ErrServiceUnavailable) {
		t.Fatalf("expected service unavailable on timeout, got %v", err)
	}
}

type result struct {
	text string
	err  error
}

type fakeBackend struct {
	mu       sync.Mutex
	results  []result
	calls    int
	language domain.Language
	block    bool
}

func (f *fakeBackend) Transcribe(ctx context.Context, _ domain.AudioClip, language domain.Language) (string, error) {
	f.mu.Lock()
	f.calls++
	f.language = language
	block := f.block
	var r result
	if len(f.results) > 0 {
		r = f.results[0]
		f.results = f.results[1:]
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return r.text, r.err
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeBackend) lastLanguage() domain.Language {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.language
}
