// Command calibrate fits a calibration mapping offline. Observations come
// from a labeled dataset directory (recognized on the spot), a service
// SQLite database, or a JSON file of validation records. The fitted
// mapping is written as JSON alongside a reliability table.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/inkwell-ocr/inkwell/internal/adapters/recognizer"
	"github.com/inkwell-ocr/inkwell/internal/adapters/repository"
	"github.com/inkwell-ocr/inkwell/internal/dataset"
	"github.com/inkwell-ocr/inkwell/internal/domain/calibration"
	"github.com/inkwell-ocr/inkwell/internal/domain/eval"
	"github.com/inkwell-ocr/inkwell/internal/domain/types"
	"github.com/inkwell-ocr/inkwell/pkg/logger"
)

func main() {
	var (
		datasetDir  = flag.String("dataset", "", "Labeled dataset directory (gt.txt + images/) to recognize and fit from")
		dbPath      = flag.String("db", "", "Path to a service SQLite database to read records from")
		recordsPath = flag.String("records", "", "Path to a JSON file of validation records")
		bins        = flag.Int("bins", calibration.DefaultBinCount, "Number of histogram bins")
		outPath     = flag.String("out", "", "Output file for the mapping JSON (default: stdout)")
		save        = flag.Bool("save", false, "Also persist the mapping into the database given by -db")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := run(context.Background(), *datasetDir, *dbPath, *recordsPath, *bins, *outPath, *save); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, datasetDir, dbPath, recordsPath string, bins int, outPath string, save bool) error {
	obs, store, err := loadObservations(ctx, datasetDir, dbPath, recordsPath)
	if err != nil {
		return err
	}
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	m, err := calibration.Fit(obs, calibration.WithBinCount(bins))
	if err != nil {
		return fmt.Errorf("fit failed: %w", err)
	}

	if save {
		if store == nil {
			return fmt.Errorf("-save requires -db")
		}
		if err := store.SaveMapping(ctx, m); err != nil {
			return fmt.Errorf("save mapping: %w", err)
		}
	}

	printReliabilityTable(m, len(obs))

	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')

	if outPath == "" {
		_, err = os.Stdout.Write(out)
		return err
	}
	return os.WriteFile(outPath, out, 0o644)
}

// loadObservations reads observations from exactly one of the three
// sources. The returned store is non-nil only when -db was used.
func loadObservations(ctx context.Context, datasetDir, dbPath, recordsPath string) ([]calibration.Observation, repository.Store, error) {
	set := 0
	for _, s := range []string{datasetDir, dbPath, recordsPath} {
		if s != "" {
			set++
		}
	}
	if set != 1 {
		return nil, nil, fmt.Errorf("exactly one of -dataset, -db or -records is required")
	}

	switch {
	case datasetDir != "":
		obs, err := observeDataset(ctx, datasetDir)
		return obs, nil, err

	case dbPath != "":
		store, err := repository.NewSQLiteStore(dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		preds, err := store.Predictions(ctx, "")
		if err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("read records: %w", err)
		}
		obs := make([]calibration.Observation, len(preds))
		for i, p := range preds {
			obs[i] = calibration.Observation{RawConfidence: p.RawConfidence, Correct: p.Correct}
		}
		return obs, store, nil

	default:
		raw, err := os.ReadFile(recordsPath)
		if err != nil {
			return nil, nil, fmt.Errorf("read records file: %w", err)
		}
		var records []types.ValidationRecord
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, nil, fmt.Errorf("parse records file: %w", err)
		}
		obs := make([]calibration.Observation, len(records))
		for i, r := range records {
			obs[i] = calibration.Observation{RawConfidence: r.RawConfidence, Correct: r.Correct}
		}
		return obs, nil, nil
	}
}

// observeDataset recognizes every sample in a labeled dataset and aligns
// the tokens against the ground truth.
func observeDataset(ctx context.Context, dir string) ([]calibration.Observation, error) {
	samples, err := dataset.Load(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}

	engine := recognizer.New()
	var obs []calibration.Observation
	for _, sample := range samples {
		image, err := os.ReadFile(sample.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", sample.ImagePath, err)
		}
		rec, err := engine.Recognize(ctx, image)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", sample.ID, err)
		}
		obs = append(obs, eval.Align(rec.Tokens, sample.Truth)...)
	}
	fmt.Fprintf(os.Stderr, "recognized %d samples (%d observations) with engine %q\n",
		len(samples), len(obs), engine.Name())
	return obs, nil
}

// printReliabilityTable writes the fitted bins to stderr so the mapping
// JSON on stdout stays machine-readable.
func printReliabilityTable(m *calibration.Mapping, total int) {
	fmt.Fprintf(os.Stderr, "fitted %d bins from %d observations\n", m.Bins(), total)
	fmt.Fprintf(os.Stderr, "%10s  %10s\n", "midpoint", "calibrated")
	for _, p := range m.Points() {
		fmt.Fprintf(os.Stderr, "%10.3f  %10.3f\n", p.Midpoint, p.Calibrated)
	}
}
