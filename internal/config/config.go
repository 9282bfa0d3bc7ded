// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load(ctx) layers file and env.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// JobQueueSize bounds the in-memory evaluation job queue.
	JobQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of recognition workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize caps the record deduplication cache. Zero means unbounded.
	DedupeSize int `koanf:"dedupe_size"`

	// BinCount sets the default histogram bin count for calibration fits.
	BinCount int `koanf:"bin_count"`

	// StorePath locates the SQLite database file.
	StorePath string `koanf:"store_path"`

	// RefitSchedule is a cron expression for periodic refits. Empty disables
	// the scheduler.
	RefitSchedule string `koanf:"refit_schedule"`

	// MaxUploadBytes caps the request body on POST /recognize.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// EngineLatencyMinMS and EngineLatencyMaxMS bound the simulated engine
	// latency when the service is built without Tesseract.
	EngineLatencyMinMS int `koanf:"engine_latency_min_ms"`
	EngineLatencyMaxMS int `koanf:"engine_latency_max_ms"`

	// EngineLanguages lists the recognition languages, e.g. ["eng"].
	EngineLanguages []string `koanf:"engine_languages"`

	// DatasetDir is the default evaluation dataset directory.
	DatasetDir string `koanf:"dataset_dir"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		JobQueueSize:       10_000,
		WorkerCount:        runtime.NumCPU() * 4,
		DedupeSize:         50_000,
		BinCount:           10,
		StorePath:          "inkwell.db",
		RefitSchedule:      "",
		MaxUploadBytes:     10 << 20,
		EngineLatencyMinMS: 20,
		EngineLatencyMaxMS: 60,
		EngineLanguages:    []string{"eng"},
		DatasetDir:         "",
	}
}
