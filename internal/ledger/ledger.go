// Package ledger keeps a SQLite history of batch runs and their sample outcomes.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"enrich/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	root TEXT NOT NULL,
	organism TEXT NOT NULL,
	succeeded INTEGER NOT NULL,
	failed INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS outcomes (
	run_id TEXT NOT NULL REFERENCES runs(id),
	position INTEGER NOT NULL,
	sample_name TEXT NOT NULL,
	status TEXT NOT NULL,
	up_count INTEGER NOT NULL,
	down_count INTEGER NOT NULL,
	counts_json TEXT NOT NULL,
	error TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);`

// Run is one recorded batch run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Root       string
	Organism   string
	Succeeded  int
	Failed     int
}

// Ledger implements domain.OutcomeRecorder.
type Ledger struct {
	db *sql.DB
}

// Open creates the database file and its parent directories when missing.
func Open(path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger tables: %w", err)
	}
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

// Record stores the run and every outcome in one transaction.
func (l *Ledger) Record(ctx context.Context, s domain.BatchSummary) (retErr error) {
	if s.RunID == "" {
		return fmt.Errorf("run id required")
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, root, organism, succeeded, failed) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.StartedAt.UTC().Format(time.RFC3339Nano), s.FinishedAt.UTC().Format(time.RFC3339Nano),
		s.Root, s.Organism, s.Succeeded(), s.Failed(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for i, o := range s.Outcomes {
		counts, err := json.Marshal(o.Counts)
		if err != nil {
			return fmt.Errorf("encode counts: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outcomes (run_id, position, sample_name, status, up_count, down_count, counts_json, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.RunID, i, o.SampleName, string(o.Status), o.UpGenes, o.DownGenes, string(counts), o.Error,
		); err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.SampleName, err)
		}
	}
	return tx.Commit()
}

// Runs lists recorded runs, most recent first.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, root, organism, succeeded, failed FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Root, &r.Organism, &r.Succeeded, &r.Failed); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Outcomes returns the outcomes of one run in batch order.
func (l *Ledger) Outcomes(ctx context.Context, runID string) ([]domain.SampleOutcome, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT sample_name, status, up_count, down_count, counts_json, error FROM outcomes WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("select outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.SampleOutcome
	for rows.Next() {
		var o domain.SampleOutcome
		var status, counts string
		if err := rows.Scan(&o.SampleName, &status, &o.UpGenes, &o.DownGenes, &counts, &o.Error); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		o.Status = domain.Status(status)
		if err := json.Unmarshal([]byte(counts), &o.Counts); err != nil {
			return nil, fmt.Errorf("decode counts: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
