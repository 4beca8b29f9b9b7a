package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"

	"speechdesk/internal/domain"
)

// Entry is one stored transcript.
type Entry struct {
	ID         int64
	Transcript domain.Transcript
}

// Store keeps transcripts in SQLite. An empty path makes every call a no-op.
type Store struct {
	db     *sql.DB
	logger *log.Logger
	clock  func() time.Time
}

// Open creates the database file and schema if needed.
func Open(ctx context.Context, path string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	if path == "" {
		return &Store{logger: logger, clock: time.Now}, nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, logger: logger, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS transcripts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    clip_path TEXT NOT NULL,
    mode TEXT NOT NULL,
    language TEXT NOT NULL,
    direction TEXT NOT NULL,
    text TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init history schema: %w", err)
	}
	return nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save appends a transcript.
func (s *Store) Save(ctx context.Context, t domain.Transcript) error {
	if s.db == nil {
		return nil
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.clock()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transcripts(clip_path, mode, language, direction, text, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		t.ClipPath, string(t.Mode), string(t.Language), string(t.Direction), t.Text, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	s.logger.Debug("transcript saved", "clip", t.ClipPath, "mode", t.Mode, "language", t.Language)
	return nil
}

// Recent returns up to limit transcripts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, clip_path, mode, language, direction, text, created_at
		 FROM transcripts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcripts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                         Entry
			mode, language, direction string
		)
		if err := rows.Scan(&e.ID, &e.Transcript.ClipPath, &mode, &language, &direction, &e.Transcript.Text, &e.Transcript.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}
		e.Transcript.Mode = domain.Mode(mode)
		e.Transcript.Language = domain.Language(language)
		e.Transcript.Direction = domain.Direction(direction)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
