package dataset

import (
	"math/rand"

	"github.com/inkwell-ocr/inkwell/internal/domain/model"
)

// Default split parameters, chosen to reproduce the published
// train/validation partition of the converted Bentham set.
const (
	DefaultSplitSeed  = 42
	DefaultTrainRatio = 0.8
)

// Split shuffles samples with the given seed and partitions them into
// train and validation sets at ratio. The input slice is not modified.
func Split(samples []model.Sample, ratio float64, seed int64) (train, val []model.Sample, err error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, nil, ErrInvalidRatio
	}
	if len(samples) == 0 {
		return nil, nil, ErrEmptyDataset
	}

	shuffled := make([]model.Sample, len(samples))
	copy(shuffled, samples)

	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible split, not cryptographic
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	cut := int(float64(len(shuffled)) * ratio)
	return shuffled[:cut], shuffled[cut:], nil
}
