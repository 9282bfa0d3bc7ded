package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/inkwell-ocr/inkwell/internal/domain/calibration"
	"github.com/inkwell-ocr/inkwell/internal/domain/model"
	"github.com/inkwell-ocr/inkwell/pkg/metrics"
)

// SQLiteStore implements Store on a local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates or opens the sqlite database at path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// database/sql pools connections; an in-memory sqlite database
	// exists per connection, so the pool must stay at one.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS predictions (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id         TEXT NOT NULL DEFAULT '',
		raw_confidence REAL NOT NULL,
		correct        INTEGER NOT NULL,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_run ON predictions(run_id);

	CREATE TABLE IF NOT EXISTS mappings (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		points     TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS runs (
		run_id        TEXT PRIMARY KEY,
		engine        TEXT NOT NULL DEFAULT '',
		total         INTEGER NOT NULL DEFAULT 0,
		processed     INTEGER NOT NULL DEFAULT 0,
		exact_matches INTEGER NOT NULL DEFAULT 0,
		char_errors   INTEGER NOT NULL DEFAULT 0,
		truth_chars   INTEGER NOT NULL DEFAULT 0,
		started_at    DATETIME NOT NULL,
		finished_at   DATETIME
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SavePredictions appends prediction records in a single transaction.
func (s *SQLiteStore) SavePredictions(ctx context.Context, preds []model.Prediction) error {
	if len(preds) == 0 {
		return nil
	}
	start := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO predictions (run_id, raw_confidence, correct) VALUES (?, ?, ?)`)
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range preds {
		if _, err := stmt.ExecContext(ctx, p.RunID, p.RawConfidence, p.Correct); err != nil {
			metrics.RecordStoreError()
			return fmt.Errorf("inserting prediction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("committing predictions: %w", err)
	}

	metrics.RecordStoreWriteLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// Predictions returns records for runID, or all records when runID is empty.
func (s *SQLiteStore) Predictions(ctx context.Context, runID string) ([]model.Prediction, error) {
	start := time.Now()

	query := `SELECT run_id, raw_confidence, correct FROM predictions ORDER BY id`
	args := []any{}
	if runID != "" {
		query = `SELECT run_id, raw_confidence, correct FROM predictions WHERE run_id = ? ORDER BY id`
		args = append(args, runID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.RecordStoreError()
		return nil, fmt.Errorf("querying predictions: %w", err)
	}
	defer rows.Close()

	var preds []model.Prediction
	for rows.Next() {
		var p model.Prediction
		if err := rows.Scan(&p.RunID, &p.RawConfidence, &p.Correct); err != nil {
			metrics.RecordStoreError()
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		preds = append(preds, p)
	}
	if err := rows.Err(); err != nil {
		metrics.RecordStoreError()
		return nil, fmt.Errorf("iterating predictions: %w", err)
	}

	metrics.RecordStoreQueryLatency(float64(time.Since(start).Milliseconds()))
	return preds, nil
}

// CountPredictions reports the number of persisted records.
func (s *SQLiteStore) CountPredictions(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM predictions`).Scan(&count); err != nil {
		metrics.RecordStoreError()
		return 0, fmt.Errorf("counting predictions: %w", err)
	}
	return count, nil
}

// SaveMapping persists a fitted mapping as the newest version. The
// ordered point list is stored as JSON and round-trips exactly.
func (s *SQLiteStore) SaveMapping(ctx context.Context, m *calibration.Mapping) error {
	start := time.Now()

	points, err := json.Marshal(m)
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("encoding mapping: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO mappings (points) VALUES (?)`, string(points)); err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("inserting mapping: %w", err)
	}

	metrics.RecordStoreWriteLatency(float64(time.Since(start).Milliseconds()))
	return nil
}

// LatestMapping returns the most recently saved mapping.
func (s *SQLiteStore) LatestMapping(ctx context.Context) (*calibration.Mapping, error) {
	var points string
	err := s.db.QueryRowContext(ctx,
		`SELECT points FROM mappings ORDER BY id DESC LIMIT 1`).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordStoreError()
		return nil, fmt.Errorf("querying mapping: %w", err)
	}

	var m calibration.Mapping
	if err := json.Unmarshal([]byte(points), &m); err != nil {
		metrics.RecordStoreError()
		return nil, fmt.Errorf("decoding mapping: %w", err)
	}
	return &m, nil
}

// CreateRun registers a new evaluation run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, engine, total, processed, exact_matches, char_errors, truth_chars, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Engine, run.Total, run.Processed,
		run.ExactMatches, run.CharErrors, run.TruthChars, run.StartedAt)
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// UpdateRun overwrites the stored metadata for run.ID.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run model.Run) error {
	var finished any
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET engine = ?, total = ?, processed = ?, exact_matches = ?,
		 char_errors = ?, truth_chars = ?, started_at = ?, finished_at = ?
		 WHERE run_id = ?`,
		run.Engine, run.Total, run.Processed, run.ExactMatches,
		run.CharErrors, run.TruthChars, run.StartedAt, finished, run.ID)
	if err != nil {
		metrics.RecordStoreError()
		return fmt.Errorf("updating run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun returns the run with the given id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, engine, total, processed, exact_matches, char_errors, truth_chars, started_at, finished_at
		 FROM runs WHERE run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordStoreError()
		return model.Run{}, fmt.Errorf("querying run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, engine, total, processed, exact_matches, char_errors, truth_chars, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, run_id DESC`)
	if err != nil {
		metrics.RecordStoreError()
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			metrics.RecordStoreError()
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		metrics.RecordStoreError()
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.Run, error) {
	var run model.Run
	var finished sql.NullTime
	err := row.Scan(&run.ID, &run.Engine, &run.Total, &run.Processed,
		&run.ExactMatches, &run.CharErrors, &run.TruthChars,
		&run.StartedAt, &finished)
	if err != nil {
		return model.Run{}, err
	}
	if finished.Valid {
		run.FinishedAt = finished.Time
	}
	return run, nil
}
