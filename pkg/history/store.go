package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Run records one ingestion run.
type Run struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DaysBack        int       `json:"days_back"`
	IMAPMessages    int       `json:"imap_messages"`
	ArchiveMessages int       `json:"archive_messages"`
	TotalIndexed    int       `json:"total_indexed"`
	Error           string    `json:"error,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS ingest_runs (
	id TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	days_back INTEGER NOT NULL,
	imap_messages INTEGER NOT NULL DEFAULT 0,
	archive_messages INTEGER NOT NULL DEFAULT 0,
	total_indexed INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);
`

// Store persists ingestion runs in a local sqlite database.
type Store struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewStore opens (or creates) the database at path and applies the schema.
func NewStore(path string, log *logrus.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Record upserts a run by id.
func (s *Store) Record(run Run) error {
	query := `
		INSERT INTO ingest_runs (id, started_at, finished_at, days_back, imap_messages, archive_messages, total_indexed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			imap_messages = excluded.imap_messages,
			archive_messages = excluded.archive_messages,
			total_indexed = excluded.total_indexed,
			error = excluded.error
	`
	_, err := s.db.Exec(query,
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.DaysBack,
		run.IMAPMessages, run.ArchiveMessages, run.TotalIndexed, run.Error)
	if err != nil {
		return fmt.Errorf("record ingest run: %w", err)
	}
	return nil
}

// Recent returns the newest runs, most recent first.
func (s *Store) Recent(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, days_back, imap_messages, archive_messages, total_indexed, error
		FROM ingest_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ingest runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.DaysBack,
			&run.IMAPMessages, &run.ArchiveMessages, &run.TotalIndexed, &run.Error); err != nil {
			return nil, fmt.Errorf("scan ingest run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
