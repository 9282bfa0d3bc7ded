package calibration

import (
	"context"
	"sync/atomic"

	"github.com/inkwell-ocr/inkwell/pkg/logger"
)

// Calibrator holds the current mapping and applies it at inference time.
//
// The mapping is published through an atomic pointer: reads never block and a
// refit swaps in a whole new mapping, so concurrent inference requests always
// observe either the old or the new mapping, never a partial update.
type Calibrator struct {
	mapping atomic.Pointer[Mapping]
	log     logger.Logger
}

// CalibratorOption applies a configuration option to the Calibrator.
type CalibratorOption func(*Calibrator)

// WithLogger sets a logger used to warn about out-of-range inputs.
func WithLogger(log logger.Logger) CalibratorOption {
	return func(c *Calibrator) {
		if log != nil {
			c.log = log
		}
	}
}

// NewCalibrator creates a calibrator with no mapping fit yet.
func NewCalibrator(opts ...CalibratorOption) *Calibrator {
	c := &Calibrator{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetMapping atomically replaces the current mapping.
func (c *Calibrator) SetMapping(m *Mapping) {
	c.mapping.Store(m)
}

// Mapping returns the current mapping, or nil before any fit.
func (c *Calibrator) Mapping() *Mapping {
	return c.mapping.Load()
}

// Fitted reports whether a mapping is available.
func (c *Calibrator) Fitted() bool {
	return c.mapping.Load() != nil
}

// Calibrate maps a raw confidence through the current mapping.
//
// Raw values outside [0,1] are clamped with a warning rather than rejected.
// Returns ErrNotFitted when no mapping has been fit or loaded yet.
func (c *Calibrator) Calibrate(ctx context.Context, raw float64) (float64, error) {
	m := c.mapping.Load()
	if m == nil {
		return 0, ErrNotFitted
	}
	if (raw < 0 || raw > 1) && c.log != nil {
		c.log.Warn(ctx, "raw confidence out of range; clamping",
			logger.Float64("raw", raw),
		)
	}
	return m.Apply(raw), nil
}

// Refit fits a new mapping from obs and swaps it in atomically. The previous
// mapping stays visible to concurrent readers until the swap completes.
func (c *Calibrator) Refit(ctx context.Context, obs []Observation, opts ...Option) (*Mapping, error) {
	m, err := Fit(obs, opts...)
	if err != nil {
		return nil, err
	}
	c.mapping.Store(m)
	if c.log != nil {
		c.log.Info(ctx, "calibration mapping refit",
			logger.Int("observations", len(obs)),
			logger.Int("bins", m.Bins()),
		)
	}
	return m, nil
}
