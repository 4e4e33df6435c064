// Package history records terminal publish outcomes in SQLite so the
// analytics side can see what was posted, when, and under which labels.
package history

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"socialpub/internal/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS publishes (
	id          TEXT PRIMARY KEY,
	created_at  TIMESTAMP NOT NULL,
	mode        TEXT NOT NULL,
	entry_count INTEGER NOT NULL,
	text_prefix TEXT NOT NULL,
	tags        TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	method_used INTEGER NOT NULL,
	attempts    INTEGER NOT NULL,
	error       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_publishes_created_at ON publishes(created_at);
`

// Record is one row of publish history.
type Record struct {
	ID         string
	CreatedAt  time.Time
	Mode       string
	EntryCount int
	TextPrefix string
	Tags       []string
	Outcome    string
	MethodUsed int
	Attempts   int
	Error      string
}

// Store is the SQLite-backed publish-history recorder.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Append records one terminal outcome for a request. Tags pass through
// unchanged from the request; the store never interprets them.
func (s *Store) Append(req *engine.PublishRequest, out engine.Outcome) error {
	prefix := ""
	if len(req.Entries) > 0 {
		prefix = truncate(req.Entries[0].Text, 60)
	}
	_, err := s.db.Exec(`
		INSERT INTO publishes
			(id, created_at, mode, entry_count, text_prefix, tags, outcome, method_used, attempts, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, time.Now().UTC(), string(req.Mode), len(req.Entries),
		prefix, strings.Join(req.Tags, ","), string(out.Kind),
		out.MethodUsed, out.Attempts, out.Err,
	)
	if err != nil {
		return fmt.Errorf("append publish record: %w", err)
	}
	return nil
}

// Recent returns the n most recent records, newest first.
func (s *Store) Recent(n int) ([]Record, error) {
	if n <= 0 {
		n = 20
	}
	rows, err := s.db.Query(`
		SELECT id, created_at, mode, entry_count, text_prefix, tags, outcome, method_used, attempts, error
		FROM publishes ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query publish history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var tags string
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Mode, &r.EntryCount,
			&r.TextPrefix, &tags, &r.Outcome, &r.MethodUsed, &r.Attempts, &r.Error); err != nil {
			return nil, fmt.Errorf("scan publish record: %w", err)
		}
		if tags != "" {
			r.Tags = strings.Split(tags, ",")
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
