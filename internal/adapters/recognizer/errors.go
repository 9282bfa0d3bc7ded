package recognizer

import (
	"errors"
)

// Sentinel kinds for recognizer errors.
var (
	ErrEmptyImage = errors.New("empty image payload")
	ErrEngine     = errors.New("ocr engine failure")
)
