// Package repository persists prediction records, fitted calibration
// mappings, and evaluation run metadata.
package repository

import (
	"context"

	"github.com/inkwell-ocr/inkwell/internal/domain/calibration"
	"github.com/inkwell-ocr/inkwell/internal/domain/model"
)

// Store is the persistence contract for the calibration service.
type Store interface {
	// SavePredictions appends prediction records in a single transaction.
	SavePredictions(ctx context.Context, preds []model.Prediction) error

	// Predictions returns records for runID, or all records when runID
	// is empty. Ordering is insertion order.
	Predictions(ctx context.Context, runID string) ([]model.Prediction, error)

	// CountPredictions reports the number of persisted records.
	CountPredictions(ctx context.Context) (int, error)

	// SaveMapping persists a fitted mapping as the newest version.
	SaveMapping(ctx context.Context, m *calibration.Mapping) error

	// LatestMapping returns the most recently saved mapping, or
	// ErrNotFound when none has been saved.
	LatestMapping(ctx context.Context) (*calibration.Mapping, error)

	// CreateRun registers a new evaluation run.
	CreateRun(ctx context.Context, run model.Run) error

	// UpdateRun overwrites the stored metadata for run.ID.
	UpdateRun(ctx context.Context, run model.Run) error

	// GetRun returns the run with the given id, or ErrNotFound.
	GetRun(ctx context.Context, id string) (model.Run, error)

	// ListRuns returns all runs, newest first.
	ListRuns(ctx context.Context) ([]model.Run, error)

	Close() error
}
