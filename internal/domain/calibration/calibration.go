// Package calibration fits and applies monotonic confidence calibration
// mappings for OCR token confidences.
//
// A mapping is fit once from a finite set of validation observations and is
// immutable afterwards; refitting produces a new mapping that callers swap in
// atomically. Equal-width histogram binning with monotonic clipping keeps the
// mapping reproducible for a fixed bin count.
package calibration

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// DefaultBinCount is the number of equal-width bins used when no override is
// given. Fixed so that repeated fits over the same validation set are
// reproducible.
const DefaultBinCount = 10

// Observation is one validation-set prediction: the model's raw confidence
// for a token and whether the token matched the ground truth.
type Observation struct {
	RawConfidence float64
	Correct       bool
}

// Point is one (bin midpoint, calibrated value) pair of a fitted mapping.
// The persisted form of a mapping is the ordered list of its points.
type Point struct {
	Midpoint   float64 `json:"midpoint"`
	Calibrated float64 `json:"calibrated"`
}

// Mapping is a fitted, immutable, monotonically non-decreasing function from
// raw confidence in [0,1] to calibrated confidence in [0,1].
type Mapping struct {
	midpoints []float64 // ascending bin midpoints
	values    []float64 // non-decreasing calibrated values
}

// fitter carries fit configuration; populated via options.
type fitter struct {
	binCount int
}

// Option applies a configuration option to a fit.
type Option func(*fitter)

// WithBinCount sets the number of equal-width bins used for fitting.
func WithBinCount(n int) Option {
	return func(f *fitter) {
		if n > 0 {
			f.binCount = n
		}
	}
}

// Fit builds a calibration mapping from validation observations.
//
// The confidence range [0,1] is partitioned into equal-width bins. Each bin's
// calibrated value is the empirical accuracy of the observations falling into
// it; a bin with no observations keeps its raw midpoint. Small-sample noise
// can make per-bin accuracies dip; monotonicity is restored by clipping each
// value to at least the previous bin's value.
//
// Observation order is irrelevant; fitting the same set twice yields an
// identical mapping. Returns ErrInsufficientData for an empty set.
func Fit(obs []Observation, opts ...Option) (*Mapping, error) {
	if len(obs) == 0 {
		return nil, ErrInsufficientData
	}

	f := &fitter{binCount: DefaultBinCount}
	for _, opt := range opts {
		opt(f)
	}

	n := f.binCount
	correct := make([]int, n)
	total := make([]int, n)
	for _, o := range obs {
		raw := clamp01(o.RawConfidence)
		idx := int(raw * float64(n))
		if idx == n { // raw == 1.0 lands in the last bin
			idx = n - 1
		}
		total[idx]++
		if o.Correct {
			correct[idx]++
		}
	}

	midpoints := make([]float64, n)
	values := make([]float64, n)
	for i := 0; i < n; i++ {
		midpoints[i] = (float64(i) + 0.5) / float64(n)
		if total[i] == 0 {
			// No evidence in this bin: keep the raw midpoint, no extrapolation.
			values[i] = midpoints[i]
		} else {
			values[i] = float64(correct[i]) / float64(total[i])
		}
		if i > 0 && values[i] < values[i-1] {
			values[i] = values[i-1]
		}
	}

	return &Mapping{midpoints: midpoints, values: values}, nil
}

// Apply maps one raw confidence through the fitted mapping.
//
// Values between bin midpoints interpolate linearly; below the first and
// above the last midpoint the mapping extends flat. Input outside [0,1]
// (including NaN) is clamped rather than rejected, since inference-time
// robustness matters more than strict validation here.
func (m *Mapping) Apply(raw float64) float64 {
	raw = clamp01(raw)

	n := len(m.midpoints)
	switch {
	case raw <= m.midpoints[0]:
		return m.values[0]
	case raw >= m.midpoints[n-1]:
		return m.values[n-1]
	}

	// First index with midpoint >= raw; the bounds checks above keep it in [1, n-1].
	hi := sort.SearchFloat64s(m.midpoints, raw)
	lo := hi - 1
	t := (raw - m.midpoints[lo]) / (m.midpoints[hi] - m.midpoints[lo])
	return m.values[lo] + t*(m.values[hi]-m.values[lo])
}

// Bins returns the number of bins the mapping was fit with.
func (m *Mapping) Bins() int {
	return len(m.midpoints)
}

// Points returns the ordered (midpoint, calibrated) pairs of the mapping.
// The returned slice is a copy; the mapping itself never changes after Fit.
func (m *Mapping) Points() []Point {
	pts := make([]Point, len(m.midpoints))
	for i := range m.midpoints {
		pts[i] = Point{Midpoint: m.midpoints[i], Calibrated: m.values[i]}
	}
	return pts
}

// FromPoints reconstructs a mapping from its serialized points. Points must
// be non-empty, have strictly increasing midpoints and non-decreasing values,
// all within [0,1]; anything else returns ErrMalformedMapping.
func FromPoints(pts []Point) (*Mapping, error) {
	if len(pts) == 0 {
		return nil, fmt.Errorf("%w: no points", ErrMalformedMapping)
	}
	midpoints := make([]float64, len(pts))
	values := make([]float64, len(pts))
	for i, p := range pts {
		if p.Midpoint < 0 || p.Midpoint > 1 || math.IsNaN(p.Midpoint) {
			return nil, fmt.Errorf("%w: midpoint %v out of range", ErrMalformedMapping, p.Midpoint)
		}
		if p.Calibrated < 0 || p.Calibrated > 1 || math.IsNaN(p.Calibrated) {
			return nil, fmt.Errorf("%w: calibrated value %v out of range", ErrMalformedMapping, p.Calibrated)
		}
		if i > 0 && p.Midpoint <= pts[i-1].Midpoint {
			return nil, fmt.Errorf("%w: midpoints not strictly increasing at index %d", ErrMalformedMapping, i)
		}
		if i > 0 && p.Calibrated < pts[i-1].Calibrated {
			return nil, fmt.Errorf("%w: values decrease at index %d", ErrMalformedMapping, i)
		}
		midpoints[i] = p.Midpoint
		values[i] = p.Calibrated
	}
	return &Mapping{midpoints: midpoints, values: values}, nil
}

// mappingJSON is the wire shape of a serialized mapping.
type mappingJSON struct {
	Points []Point `json:"points"`
}

// MarshalJSON serializes the mapping as its ordered point list. The encoding
// round-trips exactly: deserializing yields identical outputs for every input.
func (m *Mapping) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(mappingJSON{Points: m.Points()})
	if err != nil {
		return nil, fmt.Errorf("marshal calibration mapping: %w", err)
	}
	return b, nil
}

// UnmarshalJSON restores a mapping serialized by MarshalJSON.
func (m *Mapping) UnmarshalJSON(b []byte) error {
	var wire mappingJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMapping, err)
	}
	restored, err := FromPoints(wire.Points)
	if err != nil {
		return err
	}
	*m = *restored
	return nil
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
