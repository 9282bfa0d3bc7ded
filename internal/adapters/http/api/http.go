// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/inkwell-ocr/inkwell/internal/domain/dedupe"
	"github.com/inkwell-ocr/inkwell/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Recognize runs OCR on an image and maps token confidences through
	// the current calibration when one is fitted.
	Recognize(ctx context.Context, image []byte) (types.Recognition, error)

	// Calibrate maps one raw confidence through the fitted mapping.
	Calibrate(ctx context.Context, raw float64) (float64, error)

	// MappingPoints returns the current mapping as ordered points.
	MappingPoints(ctx context.Context) ([]types.MappingPoint, error)

	// Refit rebuilds the mapping from all persisted records. A binCount
	// of 0 keeps the configured default.
	Refit(ctx context.Context, binCount int) ([]types.MappingPoint, error)

	// IngestRecords persists externally collected validation records.
	IngestRecords(ctx context.Context, records []types.ValidationRecord) error

	// StartEvaluation schedules an evaluation run over the dataset in
	// dir. limit caps the number of samples; 0 means all.
	StartEvaluation(ctx context.Context, dir string, limit int) (types.RunStatus, error)

	// RunStatus reports one run's progress.
	RunStatus(ctx context.Context, id string) (types.RunStatus, error)

	// ListRuns reports all known runs, newest first.
	ListRuns(ctx context.Context) ([]types.RunStatus, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	recognizeHandler   *RecognizeHandler
	calibrationHandler *CalibrationHandler
	recordsHandler     *RecordsHandler
	evaluationsHandler *EvaluationsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, maxUploadBytes int64) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		recognizeHandler:   NewRecognizeHandler(deps, maxUploadBytes),
		calibrationHandler: NewCalibrationHandler(deps),
		recordsHandler:     NewRecordsHandler(deps),
		evaluationsHandler: NewEvaluationsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/recognize", MetricsMiddleware(s.recognizeHandler.HandleRecognize, "recognize"))
	mux.HandleFunc("/calibrate", MetricsMiddleware(s.calibrationHandler.HandleCalibrate, "calibrate"))
	mux.HandleFunc("/calibration", MetricsMiddleware(s.calibrationHandler.HandleGetMapping, "calibration"))
	mux.HandleFunc("/calibration/refit", MetricsMiddleware(s.calibrationHandler.HandleRefit, "refit"))
	mux.HandleFunc("/records", MetricsMiddleware(s.recordsHandler.HandlePostRecords, "records"))
	mux.HandleFunc("/evaluations", MetricsMiddleware(s.evaluationsHandler.HandleEvaluations, "evaluations"))
	mux.HandleFunc("/evaluations/", MetricsMiddleware(s.evaluationsHandler.HandleGetEvaluation, "evaluation"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
