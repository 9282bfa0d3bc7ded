// Package recognizer abstracts the OCR engine that produces token-level
// raw confidences. The default build uses a deterministic simulated
// engine; building with -tags tesseract swaps in a Tesseract-backed
// engine via gosseract.
package recognizer

import (
	"context"
	"time"

	"github.com/inkwell-ocr/inkwell/internal/domain/model"
)

// Default engine configuration constants.
const (
	defaultMinLatency = 20 * time.Millisecond
	defaultMaxLatency = 60 * time.Millisecond
	defaultRandomSeed = 42
	defaultLanguage   = "eng"
)

// Engine recognizes handwriting in a line image and reports per-token
// raw confidences in [0,1].
type Engine interface {
	Name() string

	// Recognize performs OCR on a single line image, honoring ctx for
	// cancellation.
	Recognize(ctx context.Context, image []byte) (model.Recognition, error)
}

// settings holds configuration shared by all engine implementations.
type settings struct {
	languages  []string
	minLatency time.Duration
	maxLatency time.Duration
	seed       int64
}

func newSettings(opts ...Option) settings {
	s := settings{
		languages:  []string{defaultLanguage},
		minLatency: defaultMinLatency,
		maxLatency: defaultMaxLatency,
		seed:       defaultRandomSeed,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option applies a configuration option to an engine.
type Option func(*settings)

// WithLanguages sets the recognition languages.
func WithLanguages(languages ...string) Option {
	return func(s *settings) {
		if len(languages) > 0 {
			s.languages = languages
		}
	}
}

// WithLatencyRange sets the simulated latency range. The Tesseract
// engine ignores it.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *settings) {
		if minLatency > 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithSeed sets the random seed used by the simulated engine.
func WithSeed(seed int64) Option {
	return func(s *settings) {
		s.seed = seed
	}
}
