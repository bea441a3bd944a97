package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harun/webpilot/internal/observability"
)

// Run is one completed instruction as recorded for the caller. Only
// the caller-visible result is stored; the conversation never is.
type Run struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Instruction string    `json:"instruction"`
	Success     bool      `json:"success"`
	Summary     string    `json:"summary"`
	Turns       int       `json:"turns"`
	DurationMs  int64     `json:"duration_ms"`
	StartedAt   time.Time `json:"started_at"`
}

// Store is the SQLite-backed run history.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// New opens (or creates) the history database at path.
func New(path string, logger zerolog.Logger) (*Store, error) {
	observability.EnsureRegistered()

	if path == "" {
		return nil, fmt.Errorf("history path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("History store initialized")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			instruction TEXT NOT NULL,
			success INTEGER NOT NULL,
			summary TEXT NOT NULL,
			turns INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			started_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session_id);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record appends one completed run. A missing ID gets generated.
func (s *Store) Record(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		id, err := gonanoid.New(12)
		if err != nil {
			return "", fmt.Errorf("failed to generate run ID: %w", err)
		}
		run.ID = id
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, session_id, instruction, success, summary, turns, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.Instruction, boolToInt(run.Success),
		run.Summary, run.Turns, run.DurationMs, run.StartedAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}

	observability.RecordHistoryWrite(time.Since(start))

	s.logger.Debug().
		Str("runId", run.ID).
		Str("sessionId", run.SessionID).
		Bool("success", run.Success).
		Msg("Run recorded")

	return run.ID, nil
}

// List returns runs newest first. An empty sessionID matches all
// sessions; limit <= 0 defaults to 50.
func (s *Store) List(ctx context.Context, sessionID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, session_id, instruction, success, summary, turns, duration_ms, started_at
		FROM runs`
	args := []interface{}{}

	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Get returns one run by ID.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, instruction, success, summary, turns, duration_ms, started_at
		FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Count returns the total number of recorded runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count)
	return count, err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var success int
	var startedAt int64

	err := row.Scan(&run.ID, &run.SessionID, &run.Instruction, &success,
		&run.Summary, &run.Turns, &run.DurationMs, &startedAt)
	if err != nil {
		return Run{}, err
	}

	run.Success = success != 0
	run.StartedAt = time.UnixMilli(startedAt)
	return run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
