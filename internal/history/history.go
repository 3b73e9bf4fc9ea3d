// Package history keeps a SQLite record of scenario replays so repeated
// runs of the same file can be compared.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/svcreg/internal/log"
	"github.com/zjrosen/svcreg/internal/scenario"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	scenario TEXT NOT NULL,
	path TEXT NOT NULL DEFAULT '',
	passed INTEGER NOT NULL,
	events INTEGER NOT NULL DEFAULT 0,
	lookups INTEGER NOT NULL DEFAULT 0,
	faults INTEGER NOT NULL DEFAULT 0,
	started_at INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS runs_scenario ON runs(scenario, id);

CREATE TABLE IF NOT EXISTS mismatches (
	run_id INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	text TEXT NOT NULL,
	PRIMARY KEY (run_id, seq),
	FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`

// ErrClosed is returned when the store is used after Close.
var ErrClosed = errors.New("history store closed")

// Run is one recorded replay.
type Run struct {
	ID         int64
	Scenario   string
	Path       string
	Passed     bool
	Events     int
	Lookups    int
	Faults     int
	Mismatches []string
	StartedAt  time.Time
	Duration   time.Duration
}

// FromResult summarizes a replay result for recording.
func FromResult(path string, res *scenario.Result, started time.Time, took time.Duration) Run {
	return Run{
		Scenario:   res.Name,
		Path:       path,
		Passed:     res.Passed(),
		Events:     len(res.Transcript),
		Lookups:    len(res.Lookups),
		Faults:     len(res.Faults),
		Mismatches: append([]string(nil), res.Mismatches...),
		StartedAt:  started,
		Duration:   took,
	}
}

// Store records replays in a SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	log.Debug(log.CatHistory, "opening history", "path", path)
	db, err := sql.Open("sqlite3", "file:"+filepath.ToSlash(path)+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		log.ErrorErr(log.CatHistory, "failed to open history", err, "path", path)
		return nil, fmt.Errorf("opening history %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		log.ErrorErr(log.CatHistory, "failed to create schema", err, "path", path)
		return nil, fmt.Errorf("creating history schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Record stores run and returns its id.
func (s *Store) Record(ctx context.Context, run Run) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (scenario, path, passed, events, lookups, faults, started_at, duration_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Scenario, run.Path, run.Passed, run.Events, run.Lookups, run.Faults,
		run.StartedAt.UnixNano(), int64(run.Duration))
	if err != nil {
		return 0, fmt.Errorf("inserting run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}

	for i, text := range run.Mismatches {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mismatches (run_id, seq, text) VALUES (?, ?, ?)`, id, i, text); err != nil {
			return 0, fmt.Errorf("inserting mismatch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	log.Debug(log.CatHistory, "recorded run", "id", id, "scenario", run.Scenario, "passed", run.Passed)
	return id, nil
}

// Recent returns up to limit runs, newest first. An empty name returns
// runs of every scenario. A limit below 1 means no limit.
func (s *Store) Recent(ctx context.Context, name string, limit int) ([]Run, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit < 1 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scenario, path, passed, events, lookups, faults, started_at, duration_ns
		 FROM runs
		 WHERE ? = '' OR scenario = ?
		 ORDER BY id DESC
		 LIMIT ?`, name, name, limit)
	if err != nil {
		log.ErrorErr(log.CatHistory, "recent runs query failed", err)
		return nil, fmt.Errorf("querying runs: %w", err)
	}

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			started int64
			took    int64
		)
		if err := rows.Scan(&r.ID, &r.Scenario, &r.Path, &r.Passed, &r.Events, &r.Lookups,
			&r.Faults, &started, &took); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt = time.Unix(0, started)
		r.Duration = time.Duration(took)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	_ = rows.Close()

	for i := range runs {
		if runs[i].Passed {
			continue
		}
		mismatches, err := s.mismatches(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Mismatches = mismatches
	}
	return runs, nil
}

func (s *Store) mismatches(ctx context.Context, runID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT text FROM mismatches WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying mismatches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scanning mismatch: %w", err)
		}
		out = append(out, text)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep runs and returns how many went.
// A keep below 1 keeps every run.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	if keep < 1 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	if n > 0 {
		log.Info(log.CatHistory, "pruned history", "removed", n, "kept", keep)
	}
	return n, nil
}
