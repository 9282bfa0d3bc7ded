package calibration

import "errors"

// Sentinel kinds for calibration errors.
var (
	// ErrInsufficientData is returned when a fit is attempted over an empty
	// validation set. Fatal to the fit; there is nothing to retry.
	ErrInsufficientData = errors.New("no observations to fit calibration")

	// ErrNotFitted is returned when calibration is applied before any mapping
	// has been fit or loaded. This is a programming error at the call site.
	ErrNotFitted = errors.New("calibrator not fitted")

	// ErrMalformedMapping is returned when a persisted mapping fails
	// validation on load.
	ErrMalformedMapping = errors.New("malformed calibration mapping")
)
