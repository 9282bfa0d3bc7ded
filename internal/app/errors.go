package service

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNoStore        = errors.New("service requires a store")
	ErrStartFailed    = errors.New("service start failed")
	ErrRefitFailed    = errors.New("calibration refit failed")
	ErrIngestFailed   = errors.New("record ingestion failed")
	ErrStartRunFailed = errors.New("evaluation run start failed")
)
