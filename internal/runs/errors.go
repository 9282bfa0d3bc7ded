package runs

import (
	"errors"
)

// Sentinel kinds for run tracking errors.
var (
	ErrUnknownRun = errors.New("unknown evaluation run")
)
