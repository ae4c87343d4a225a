// Package history persists backup run outcomes in a local SQLite database,
// one row per finished run.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"vbt-go/internal/history/migrations"
	"vbt-go/internal/vbt"
)

// Store is a SQLite-backed run recorder.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the run history database at path, creating parent directories
// and applying pending migrations as needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := openConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func openConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// Wait for locks instead of failing when the daemon and a one-off CLI
	// run touch the database at the same time.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Record inserts one finished run.
func (s *Store) Record(run *vbt.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO backup_runs (id, started_at, finished_at, object_key, status, reason, file_count, bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Key,
		string(run.Status), run.Reason, run.FileCount, run.Bytes,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(limit int) ([]*vbt.Run, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, object_key, status, reason, file_count, bytes
		FROM backup_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*vbt.Run
	for rows.Next() {
		run := &vbt.Run{}
		var status string
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Key,
			&status, &run.Reason, &run.FileCount, &run.Bytes); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.Status = vbt.RunStatus(status)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading runs: %w", err)
	}
	return runs, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that Store implements vbt.RunRecorder.
var _ vbt.RunRecorder = (*Store)(nil)
