package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Journal configuration constants.
const (
	// dirPermissions is the permission mode for the journal directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the journal file.
	filePermissions = 0600

	// busyTimeoutMS is the maximum time to wait for a database lock.
	busyTimeoutMS = 5000

	// connectionTimeout is the timeout for verifying connectivity.
	connectionTimeout = 5 * time.Second
)

// schema holds the journal tables. Additive-only: new columns get defaults
// so old journals keep opening.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	source TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT
) STRICT;

CREATE TABLE IF NOT EXISTS run_rows (
	run_id TEXT NOT NULL,
	line INTEGER NOT NULL,
	key TEXT NOT NULL,
	target TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error TEXT,
	PRIMARY KEY (run_id, line),
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
) STRICT;
CREATE INDEX IF NOT EXISTS idx_run_rows_outcome ON run_rows(outcome);
`

// Journal wraps a sql.DB holding provisioning run outcomes.
type Journal struct {
	db *sql.DB
}

// RowOutcome is one journalled record outcome.
type RowOutcome struct {
	Line    int
	Key     string
	Target  string
	Outcome string
	Error   string
}

// Open creates (or reopens) the journal database at path.
//
// It performs the following setup:
//  1. Creates the journal directory if it doesn't exist
//  2. Opens the database file with busy timeout and foreign keys on
//  3. Applies the journal schema (idempotent)
//  4. Sets file permissions (0600)
//
// Parameters:
//   - path: Filesystem path of the SQLite file
//
// Returns:
//   - *Journal: Ready journal
//   - error: If connection or schema setup fails
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", path, busyTimeoutMS)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	// Single writer keeps SQLite happy; the pipeline is sequential anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying journal connection: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("applying journal schema: %w", err)
	}

	_ = os.Chmod(path, filePermissions) //nolint:errcheck // File may not exist until first write

	return &Journal{db: db}, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// StartRun records the beginning of a pipeline run and returns its id.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - mode: "create" or "delete"
//   - source: descriptor file path driving the run
//
// Returns:
//   - string: run id (UUID)
//   - error: If the insert fails
func (j *Journal) StartRun(ctx context.Context, mode, source string) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, source, started_at) VALUES (?, ?, ?, ?)`,
		id, mode, source, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("recording run start: %w", err)
	}
	return id, nil
}

// FinishRun stamps a run's completion time.
func (j *Journal) FinishRun(ctx context.Context, runID string) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), runID,
	)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	return nil
}

// RecordRow journals one processed record's outcome.
func (j *Journal) RecordRow(ctx context.Context, runID string, row RowOutcome) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO run_rows (run_id, line, key, target, outcome, error)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, row.Line, row.Key, row.Target, row.Outcome, nullable(row.Error),
	)
	if err != nil {
		return fmt.Errorf("recording row outcome: %w", err)
	}
	return nil
}

// Rows returns the journalled outcomes of a run in line order.
func (j *Journal) Rows(ctx context.Context, runID string) ([]RowOutcome, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT line, key, target, outcome, COALESCE(error, '')
		 FROM run_rows WHERE run_id = ? ORDER BY line`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying run rows: %w", err)
	}
	defer rows.Close()

	var outcomes []RowOutcome
	for rows.Next() {
		var row RowOutcome
		if err := rows.Scan(&row.Line, &row.Key, &row.Target, &row.Outcome, &row.Error); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		outcomes = append(outcomes, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	return outcomes, nil
}

// nullable maps "" to NULL so empty errors don't clutter the table.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
