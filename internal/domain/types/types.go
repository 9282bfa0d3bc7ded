// Package types contains common types used across the application
package types

// TokenConfidence is one recognized word with its raw and calibrated
// confidence as returned by the API.
type TokenConfidence struct {
	Text       string   `json:"text"`
	Raw        float64  `json:"raw_confidence"`
	Calibrated *float64 `json:"calibrated_confidence,omitempty"` // absent before any fit
}

// Recognition is the API shape of one OCR result.
type Recognition struct {
	Text       string            `json:"text"`
	Tokens     []TokenConfidence `json:"tokens"`
	Calibrated bool              `json:"calibrated"`
}

// MappingPoint is one (bin midpoint, calibrated value) pair of the fitted
// calibration mapping.
type MappingPoint struct {
	Midpoint   float64 `json:"midpoint"`
	Calibrated float64 `json:"calibrated"`
}

// ValidationRecord is one externally collected observation: a raw
// confidence paired with whether the prediction was correct. ID makes
// ingestion idempotent.
type ValidationRecord struct {
	ID            string  `json:"id"`
	RawConfidence float64 `json:"raw_confidence"`
	Correct       bool    `json:"correct"`
}

// RunStatus reports the progress of an evaluation run.
type RunStatus struct {
	RunID        string  `json:"run_id"`
	Total        int     `json:"total"`
	Processed    int     `json:"processed"`
	Done         bool    `json:"done"`
	ExactMatches int     `json:"exact_matches"`
	CharErrRate  float64 `json:"char_error_rate"`
}
