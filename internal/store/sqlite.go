package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/phuslu/log"
	_ "modernc.org/sqlite"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// migrations are applied in order; the index of the last applied entry + 1
// is stored in schema_version.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		batch_id     TEXT,
		symbol       TEXT NOT NULL,
		started_at   INTEGER NOT NULL,
		completed_at INTEGER,
		stage        TEXT NOT NULL,
		action       TEXT,
		confidence   TEXT,
		payload      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_symbol_started ON runs(symbol, started_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_action ON runs(action)`,
}

// SQLiteStore keeps runs in a SQLite database with the full run as a JSON
// payload and the queryable columns alongside.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: set pragma %s: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	log.Info().Str("path", path).Msg("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// Version returns the applied schema version.
func (s *SQLiteStore) Version() (int, error) {
	var v int
	err := s.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&v)
	return v, err
}

func (s *SQLiteStore) Save(ctx context.Context, run *models.AnalysisRun) error {
	if err := validate(run); err != nil {
		return err
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", run.Symbol, err)
	}

	var action, confidence string
	if run.Recommendation != nil {
		action = string(run.Recommendation.Action)
		confidence = run.Recommendation.Confidence
	}
	var completed int64
	if !run.CompletedAt.IsZero() {
		completed = run.CompletedAt.UnixNano()
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(id, batch_id, symbol, started_at, completed_at, stage, action, confidence, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.BatchID, strings.ToUpper(run.Symbol), runTime(run).UnixNano(), completed,
		string(run.Stage), action, confidence, string(payload))
	if err != nil {
		return fmt.Errorf("store: insert %s: %w", run.Symbol, err)
	}
	return nil
}

func (s *SQLiteStore) Latest(ctx context.Context, symbol string) (*models.AnalysisRun, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM runs WHERE symbol = ? ORDER BY started_at DESC LIMIT 1`,
		strings.ToUpper(symbol)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest %s: %w", symbol, err)
	}
	return decodeRun(payload)
}

func (s *SQLiteStore) List(ctx context.Context, symbol string, limit int) ([]*models.AnalysisRun, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	var (
		rows *sql.Rows
		err  error
	)
	if symbol == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT payload FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT payload FROM runs WHERE symbol = ? ORDER BY started_at DESC LIMIT ?`,
			strings.ToUpper(symbol), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []*models.AnalysisRun
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		run, err := decodeRun(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// CountByAction returns how many stored runs ended in each action.
func (s *SQLiteStore) CountByAction(ctx context.Context) (map[models.Action]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action, COUNT(*) FROM runs WHERE action != '' GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("store: count: %w", err)
	}
	defer rows.Close()

	out := make(map[models.Action]int)
	for rows.Next() {
		var (
			action string
			n      int
		)
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		out[models.Action(action)] = n
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func decodeRun(payload string) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, fmt.Errorf("store: decode run: %w", err)
	}
	return &run, nil
}
