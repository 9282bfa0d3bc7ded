// Package model contains domain models passed between layers.
package model

import "time"

// Sample is one labeled handwriting line from a validation set: the image to
// recognize and its ground-truth transcription.
type Sample struct {
	ID        string // dataset identifier, e.g. "bentham_000042"
	ImagePath string // path to the line image on disk
	Truth     string // ground-truth transcription
}

// Job is one unit of evaluation work flowing through the queue.
type Job struct {
	RunID  string // evaluation run this sample belongs to
	Sample Sample
}

// Token is one recognized output unit with the model's raw confidence.
type Token struct {
	Text          string
	RawConfidence float64 // in [0,1]
}

// Recognition is the output of the OCR engine for one image.
type Recognition struct {
	Text   string
	Tokens []Token
}

// Prediction pairs a raw confidence with its correctness against ground
// truth. Records are immutable once collected; they exist only to feed the
// calibration fit.
type Prediction struct {
	RunID         string
	RawConfidence float64
	Correct       bool
}

// Run is the metadata of one evaluation run over a validation set.
type Run struct {
	ID           string
	Engine       string
	Total        int // samples scheduled
	Processed    int // samples finished
	ExactMatches int
	CharErrors   int // summed Levenshtein distances
	TruthChars   int // summed ground-truth lengths
	StartedAt    time.Time
	FinishedAt   time.Time // zero while the run is in flight
}

// SampleResult summarizes one evaluated sample for run statistics.
type SampleResult struct {
	SampleID   string
	Text       string
	ExactMatch bool
	CharErrors int // Levenshtein distance to the ground truth
	TruthLen   int
	FinishedAt time.Time
}
