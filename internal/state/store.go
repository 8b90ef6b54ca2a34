package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run status constants.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Store persists composition runs and deployments.
type Store interface {
	CreateRun(composition string, input string) (string, error)
	UpdateRunStatus(runID string, status string, steps int, result string, errMsg string) error
	GetRun(runID string) (*RunRecord, error)
	ListRuns(limit int) ([]RunRecord, error)

	RecordDeployment(name string, states int, artifacts int) error
	ListDeployments(limit int) ([]DeploymentRecord, error)

	LogEvent(runID string, state string, message string) error
	GetEvents(runID string, limit int) ([]LogRecord, error)

	Close() error
}

type store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at dbPath.
func NewStore(dbPath string) (Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite performs best with a single connection due to its locking model.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	composition TEXT NOT NULL,
	status TEXT NOT NULL,
	input TEXT,
	steps INTEGER NOT NULL DEFAULT 0,
	result TEXT,
	error_message TEXT,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS deployments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	states INTEGER NOT NULL,
	artifacts INTEGER NOT NULL,
	deployed_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS run_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	timestamp TIMESTAMP NOT NULL,
	state TEXT NOT NULL,
	message TEXT
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);
`
	_, err := db.Exec(schema)
	return err
}

func (s *store) CreateRun(composition string, input string) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, composition, status, input, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID, composition, StatusRunning, input, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return runID, nil
}

func (s *store) UpdateRunStatus(runID string, status string, steps int, result string, errMsg string) error {
	var completedAt any
	if status == StatusCompleted || status == StatusFailed {
		completedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, steps = ?, result = ?, error_message = ?, completed_at = ? WHERE run_id = ?`,
		status, steps, result, errMsg, completedAt, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, err)
	}
	return nil
}

func (s *store) GetRun(runID string) (*RunRecord, error) {
	row := s.db.QueryRow(
		`SELECT run_id, composition, status, COALESCE(input, ''), steps, COALESCE(result, ''),
			COALESCE(error_message, ''), started_at, completed_at
		 FROM runs WHERE run_id = ?`, runID)
	var r RunRecord
	var completedAt sql.NullTime
	if err := row.Scan(&r.RunID, &r.Composition, &r.Status, &r.Input, &r.Steps, &r.Result,
		&r.ErrorMessage, &r.StartedAt, &completedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s not found", runID)
		}
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	return &r, nil
}

func (s *store) ListRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT run_id, composition, status, COALESCE(input, ''), steps, COALESCE(result, ''),
			COALESCE(error_message, ''), started_at, completed_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var completedAt sql.NullTime
		if err := rows.Scan(&r.RunID, &r.Composition, &r.Status, &r.Input, &r.Steps, &r.Result,
			&r.ErrorMessage, &r.StartedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if completedAt.Valid {
			r.CompletedAt = &completedAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *store) RecordDeployment(name string, states int, artifacts int) error {
	_, err := s.db.Exec(
		`INSERT INTO deployments (name, states, artifacts, deployed_at) VALUES (?, ?, ?, ?)`,
		name, states, artifacts, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record deployment: %w", err)
	}
	return nil
}

func (s *store) ListDeployments(limit int) ([]DeploymentRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT name, states, artifacts, deployed_at FROM deployments ORDER BY deployed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	var out []DeploymentRecord
	for rows.Next() {
		var d DeploymentRecord
		if err := rows.Scan(&d.Name, &d.States, &d.Artifacts, &d.DeployedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *store) LogEvent(runID string, state string, message string) error {
	_, err := s.db.Exec(
		`INSERT INTO run_events (run_id, timestamp, state, message) VALUES (?, ?, ?, ?)`,
		runID, time.Now().UTC(), state, message,
	)
	if err != nil {
		return fmt.Errorf("failed to log event: %w", err)
	}
	return nil
}

func (s *store) GetEvents(runID string, limit int) ([]LogRecord, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(
		`SELECT id, run_id, timestamp, state, COALESCE(message, '')
		 FROM run_events WHERE run_id = ? ORDER BY id ASC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var out []LogRecord
	for rows.Next() {
		var l LogRecord
		if err := rows.Scan(&l.ID, &l.RunID, &l.Timestamp, &l.State, &l.Message); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *store) Close() error {
	return s.db.Close()
}
