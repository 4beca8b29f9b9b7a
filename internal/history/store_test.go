package history

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"speechdesk/internal/domain"
)

func TestStoreSaveAndRecent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "data", "history.db"), log.New(io.Discard))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	first := domain.Transcript{Text: "hello", Language: domain.LanguageEnglish, Mode: domain.ModeOnline, Direction: domain.DirectionLTR, ClipPath: "a.wav", CreatedAt: base}
	second := domain.Transcript{Text: "salaam", Language: domain.LanguagePersian, Mode: domain.ModeOffline, Direction: domain.DirectionRTL, ClipPath: "b.wav", CreatedAt: base.Add(time.Minute)}
	for _, tr := range []domain.Transcript{first, second} {
		if err := store.Save(ctx, tr); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	got := entries[0].Transcript
	if got.Text != "salaam" || got.Language != domain.LanguagePersian || got.Mode != domain.ModeOffline || got.Direction != domain.DirectionRTL {
		t.Fatalf("unexpected newest entry: %+v", got)
	}
	if !got.CreatedAt.Equal(second.CreatedAt) {
		t.Fatalf("unexpected timestamp: %s", got.CreatedAt)
	}

	limited, err := store.Recent(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("expected one entry, got %d (%v)", len(limited), err)
	}
}

func TestStoreEphemeral(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), "", log.New(io.Discard))
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if err := store.Save(context.Background(), domain.Transcript{Text: "x"}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	entries, err := store.Recent(context.Background(), 5)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected no entries, got %v (%v)", entries, err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}
