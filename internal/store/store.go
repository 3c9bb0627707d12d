// Package store persists runs, their transcripts, and trace spans in
// SQLite so finished runs can be inspected after the fact.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the run store. Writes during a run are append-only:
// a run row is inserted once, turns and spans only ever accumulate, and
// the run row is updated a single time when the run ends.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the run database at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("run store opened", "path", path)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			prompt TEXT NOT NULL,
			status TEXT NOT NULL,
			stop_reason TEXT NOT NULL DEFAULT '',
			steps INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS turns (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_call_id TEXT NOT NULL DEFAULT '',
			tool_name TEXT NOT NULL DEFAULT '',
			is_error INTEGER NOT NULL DEFAULT 0,
			has_image INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, seq)
		)`,
		`CREATE TABLE IF NOT EXISTS spans (
			run_id TEXT NOT NULL,
			span_id TEXT NOT NULL,
			parent_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			start_at INTEGER NOT NULL,
			end_at INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			input TEXT NOT NULL DEFAULT '',
			output TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, span_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_run ON spans(run_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

// CreateRun records a new run in the running state.
func (s *SQLiteStore) CreateRun(r Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, agent_id, prompt, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.AgentID, r.Prompt, StatusRunning, r.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun records the final status of a run. Called exactly once.
func (s *SQLiteStore) FinishRun(id, status, stopReason string, steps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, stop_reason = ?, steps = ?, ended_at = ? WHERE id = ?`,
		status, stopReason, steps, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: run %s not found", id)
	}
	return nil
}

// AppendTurn appends one transcript message to a run.
func (s *SQLiteStore) AppendTurn(t Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT INTO turns (run_id, seq, role, content, tool_call_id, tool_name, is_error, has_image, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.Seq, t.Role, t.Content, t.ToolCallID, t.ToolName,
		boolInt(t.IsError), boolInt(t.HasImage), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// AppendSpans writes a batch of spans in one transaction.
func (s *SQLiteStore) AppendSpans(spans []Span) error {
	if len(spans) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, sp := range spans {
		_, err := tx.Exec(
			`INSERT OR REPLACE INTO spans (run_id, span_id, parent_id, name, kind, start_at, end_at, status, input, output)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sp.RunID, sp.SpanID, sp.ParentID, sp.Name, sp.Kind,
			sp.StartAt.UnixMilli(), sp.EndAt.UnixMilli(), sp.Status, sp.Input, sp.Output)
		if err != nil {
			return fmt.Errorf("append span: %w", err)
		}
	}
	return tx.Commit()
}

// GetRun returns one run by id.
func (s *SQLiteStore) GetRun(id string) (Run, error) {
	row := s.db.QueryRow(
		`SELECT id, agent_id, prompt, status, stop_reason, steps, started_at, ended_at FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, agent_id, prompt, status, stop_reason, steps, started_at, ended_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListTurns returns a run's transcript in loop order.
func (s *SQLiteStore) ListTurns(runID string) ([]Turn, error) {
	rows, err := s.db.Query(
		`SELECT run_id, seq, role, content, tool_call_id, tool_name, is_error, has_image, created_at
		 FROM turns WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var isErr, hasImg int
		var created int64
		if err := rows.Scan(&t.RunID, &t.Seq, &t.Role, &t.Content,
			&t.ToolCallID, &t.ToolName, &isErr, &hasImg, &created); err != nil {
			return nil, err
		}
		t.IsError = isErr != 0
		t.HasImage = hasImg != 0
		t.CreatedAt = time.UnixMilli(created)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ListSpans returns a run's spans ordered by start time.
func (s *SQLiteStore) ListSpans(runID string) ([]Span, error) {
	rows, err := s.db.Query(
		`SELECT run_id, span_id, parent_id, name, kind, start_at, end_at, status, input, output
		 FROM spans WHERE run_id = ? ORDER BY start_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spans []Span
	for rows.Next() {
		var sp Span
		var start, end int64
		if err := rows.Scan(&sp.RunID, &sp.SpanID, &sp.ParentID, &sp.Name, &sp.Kind,
			&start, &end, &sp.Status, &sp.Input, &sp.Output); err != nil {
			return nil, err
		}
		sp.StartAt = time.UnixMilli(start)
		sp.EndAt = time.UnixMilli(end)
		spans = append(spans, sp)
	}
	return spans, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var started, ended int64
	err := row.Scan(&r.ID, &r.AgentID, &r.Prompt, &r.Status, &r.StopReason, &r.Steps, &started, &ended)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = time.UnixMilli(started)
	if ended > 0 {
		r.EndedAt = time.UnixMilli(ended)
	}
	return r, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
