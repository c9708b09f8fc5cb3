package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cardsentry/cardsentry/internal/model"
)

// SQLite persists run summaries in a local SQLite file. Reasons are stored
// as a JSON array column; everything else maps to plain columns.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the run database at path.
func OpenSQLite(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	s := &SQLite{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS triage_runs (
		id TEXT PRIMARY KEY,
		alert_id TEXT NOT NULL,
		state TEXT NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		risk TEXT,
		reasons TEXT,
		fallback_used INTEGER NOT NULL DEFAULT 0,
		latency_ms INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_alert ON triage_runs(alert_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON triage_runs(started_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return nil
}

// Save upserts one run summary.
func (s *SQLite) Save(run model.TriageRun) error {
	if run.ID == "" {
		return fmt.Errorf("store: run id is required")
	}
	reasons, err := json.Marshal(run.Reasons)
	if err != nil {
		return fmt.Errorf("store: encode reasons: %w", err)
	}
	var endedAt any
	if run.EndedAt != nil {
		endedAt = run.EndedAt.UTC().Format(time.RFC3339Nano)
	}
	fallback := 0
	if run.FallbackUsed {
		fallback = 1
	}

	_, err = s.db.Exec(`
		INSERT INTO triage_runs
			(id, alert_id, state, started_at, ended_at, risk, reasons, fallback_used, latency_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			ended_at = excluded.ended_at,
			risk = excluded.risk,
			reasons = excluded.reasons,
			fallback_used = excluded.fallback_used,
			latency_ms = excluded.latency_ms,
			error = excluded.error`,
		run.ID, run.AlertID, string(run.State),
		run.StartedAt.UTC().Format(time.RFC3339Nano), endedAt,
		string(run.Risk), string(reasons), fallback, run.LatencyMs, run.Error)
	if err != nil {
		return fmt.Errorf("store: save run %s: %w", run.ID, err)
	}
	return nil
}

// Get returns the run with the given id, or ErrNotFound.
func (s *SQLite) Get(id string) (model.TriageRun, error) {
	row := s.db.QueryRow(`
		SELECT id, alert_id, state, started_at, ended_at, risk, reasons, fallback_used, latency_ms, error
		FROM triage_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return model.TriageRun{}, ErrNotFound
	}
	if err != nil {
		return model.TriageRun{}, fmt.Errorf("store: get run %s: %w", id, err)
	}
	return run, nil
}

// List returns up to limit runs, most recently started first.
func (s *SQLite) List(limit int) ([]model.TriageRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, alert_id, state, started_at, ended_at, risk, reasons, fallback_used, latency_ms, error
		FROM triage_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []model.TriageRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (model.TriageRun, error) {
	var (
		run       model.TriageRun
		state     string
		startedAt string
		endedAt   sql.NullString
		risk      sql.NullString
		reasons   sql.NullString
		fallback  int
		runErr    sql.NullString
	)
	err := r.Scan(&run.ID, &run.AlertID, &state, &startedAt, &endedAt,
		&risk, &reasons, &fallback, &run.LatencyMs, &runErr)
	if err != nil {
		return model.TriageRun{}, err
	}

	run.State = model.RunState(state)
	if t, perr := time.Parse(time.RFC3339Nano, startedAt); perr == nil {
		run.StartedAt = t
	}
	if endedAt.Valid {
		if t, perr := time.Parse(time.RFC3339Nano, endedAt.String); perr == nil {
			run.EndedAt = &t
		}
	}
	if risk.Valid {
		run.Risk = model.RiskScore(risk.String)
	}
	if reasons.Valid && reasons.String != "" && reasons.String != "null" {
		if jerr := json.Unmarshal([]byte(reasons.String), &run.Reasons); jerr != nil {
			return model.TriageRun{}, fmt.Errorf("decode reasons: %w", jerr)
		}
	}
	run.FallbackUsed = fallback == 1
	if runErr.Valid {
		run.Error = runErr.String
	}
	return run, nil
}
