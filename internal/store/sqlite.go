// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/openreviewscope/pkg/types"
)

const dbFile = "openreviewscope.db"

// SQLiteStore keeps checkpoints of many runs in one database. The full
// state is a JSON document per run; verdicts are mirrored into their own
// table so they can be queried with plain SQL.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	runID string
}

// NewSQLiteStore opens or creates the database at path and its schema.
func NewSQLiteStore(path, runID string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &types.PersistenceError{Op: "open", Location: path, Err: fmt.Errorf("creating store directory: %w", err)}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, &types.PersistenceError{Op: "open", Location: path, Err: fmt.Errorf("opening database: %w", err)}
	}

	s := &SQLiteStore{db: db, path: path, runID: runID}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, &types.PersistenceError{Op: "open", Location: path, Err: fmt.Errorf("creating schema: %w", err)}
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			stage TEXT NOT NULL,
			state TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS verdicts (
			run_id TEXT NOT NULL REFERENCES runs(run_id),
			record_id TEXT NOT NULL,
			stage TEXT NOT NULL,
			decision TEXT NOT NULL,
			resolution TEXT NOT NULL,
			rationale TEXT,
			decided_at TEXT,
			PRIMARY KEY (run_id, record_id, stage)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_decision ON verdicts(run_id, stage, decision)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Load reads and validates the run's state.
func (s *SQLiteStore) Load(ctx context.Context) (*types.RunState, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM runs WHERE run_id = ?`, s.runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &types.PersistenceError{Op: "load", Location: s.location(), Err: err}
	}
	return decode([]byte(data), s.location())
}

// Save replaces the run's state and inserts verdicts not yet mirrored, in
// one transaction.
func (s *SQLiteStore) Save(ctx context.Context, state *types.RunState) error {
	if err := s.save(ctx, state); err != nil {
		return &types.PersistenceError{Op: "save", Location: s.location(), Err: err}
	}
	return nil
}

func (s *SQLiteStore) save(ctx context.Context, state *types.RunState) error {
	data, err := encode(state)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, stage, state, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET stage = excluded.stage, state = excluded.state, updated_at = excluded.updated_at`,
		s.runID, state.Stage.String(), string(data), state.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO verdicts (run_id, record_id, stage, decision, resolution, rationale, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing verdict insert: %w", err)
	}
	defer stmt.Close()

	for _, v := range state.Verdicts {
		if _, err := stmt.ExecContext(ctx,
			s.runID, v.RecordID, v.Stage.String(), string(v.Decision), string(v.Resolution),
			v.Rationale, v.DecidedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("inserting verdict %s: %w", v.RecordID, err)
		}
	}

	return tx.Commit()
}

// DecisionCounts returns verdict counts per decision at stage.
func (s *SQLiteStore) DecisionCounts(ctx context.Context, stage types.Stage) (map[types.Decision]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT decision, count(*) FROM verdicts WHERE run_id = ? AND stage = ? GROUP BY decision`,
		s.runID, stage.String())
	if err != nil {
		return nil, fmt.Errorf("querying verdicts: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.Decision]int)
	for rows.Next() {
		var d string
		var n int
		if err := rows.Scan(&d, &n); err != nil {
			return nil, fmt.Errorf("scanning verdict count: %w", err)
		}
		counts[types.Decision(d)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) location() string {
	return s.path + "#" + s.runID
}
