package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/inkwell-ocr/inkwell/internal/domain/calibration"
	"github.com/inkwell-ocr/inkwell/internal/domain/types"
)

// CalibrationDependencies defines the interface for calibration operations.
type CalibrationDependencies interface {
	Calibrate(ctx context.Context, raw float64) (float64, error)
	MappingPoints(ctx context.Context) ([]types.MappingPoint, error)
	Refit(ctx context.Context, binCount int) ([]types.MappingPoint, error)
}

// CalibrationHandler handles calibration requests.
type CalibrationHandler struct {
	deps CalibrationDependencies
}

// NewCalibrationHandler creates a new calibration handler.
func NewCalibrationHandler(deps CalibrationDependencies) *CalibrationHandler {
	return &CalibrationHandler{deps: deps}
}

// calibrateResponse is the shape of GET /calibrate.
type calibrateResponse struct {
	Raw        float64 `json:"raw_confidence"`
	Calibrated float64 `json:"calibrated_confidence"`
}

// HandleCalibrate handles GET /calibrate?confidence=R requests.
func (h *CalibrationHandler) HandleCalibrate(w http.ResponseWriter, r *http.Request) {
	const op = "api.calibrate"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	raw, err := strconv.ParseFloat(r.URL.Query().Get("confidence"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	calibrated, err := h.deps.Calibrate(r.Context(), raw)
	if errors.Is(err, calibration.ErrNotFitted) {
		writeError(w, http.StatusConflict, "not_fitted", NewKind(op, ErrNotFitted))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, calibrateResponse{Raw: raw, Calibrated: calibrated})
}

// mappingResponse is the shape of GET /calibration and POST /calibration/refit.
type mappingResponse struct {
	Points []types.MappingPoint `json:"points"`
}

// HandleGetMapping handles GET /calibration requests.
func (h *CalibrationHandler) HandleGetMapping(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_mapping"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	points, err := h.deps.MappingPoints(r.Context())
	if errors.Is(err, calibration.ErrNotFitted) {
		writeError(w, http.StatusNotFound, "not_fitted", NewKind(op, ErrNotFitted))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, mappingResponse{Points: points})
}

// refitRequest is the optional body of POST /calibration/refit.
type refitRequest struct {
	BinCount int `json:"bin_count"`
}

// HandleRefit handles POST /calibration/refit requests.
func (h *CalibrationHandler) HandleRefit(w http.ResponseWriter, r *http.Request) {
	const op = "api.refit"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req refitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.BinCount < 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	points, err := h.deps.Refit(r.Context(), req.BinCount)
	if errors.Is(err, calibration.ErrInsufficientData) {
		writeError(w, http.StatusConflict, "insufficient_data", Wrap(op, err))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, mappingResponse{Points: points})
}
