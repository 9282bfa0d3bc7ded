package dataset

import (
	"errors"
)

// Sentinel kinds for dataset errors.
var (
	ErrEmptyDataset    = errors.New("dataset contains no usable samples")
	ErrNoMatchedPairs  = errors.New("no image could be matched to a transcription")
	ErrMissingInput    = errors.New("input directory missing")
	ErrInvalidRatio    = errors.New("split ratio must be in (0, 1)")
	ErrUnsupportedType = errors.New("unsupported image type")
)
