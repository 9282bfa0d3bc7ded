package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/inkwell-ocr/inkwell/internal/domain/types"
	"github.com/inkwell-ocr/inkwell/internal/runs"
)

// EvaluationsDependencies defines the interface for evaluation runs.
type EvaluationsDependencies interface {
	StartEvaluation(ctx context.Context, dir string, limit int) (types.RunStatus, error)
	RunStatus(ctx context.Context, id string) (types.RunStatus, error)
	ListRuns(ctx context.Context) ([]types.RunStatus, error)
}

// EvaluationsHandler handles evaluation run requests.
type EvaluationsHandler struct {
	deps EvaluationsDependencies
}

// NewEvaluationsHandler creates a new evaluations handler.
func NewEvaluationsHandler(deps EvaluationsDependencies) *EvaluationsHandler {
	return &EvaluationsHandler{deps: deps}
}

// evaluationRequest mirrors the schema for POST /evaluations.
type evaluationRequest struct {
	DatasetDir string `json:"dataset_dir"`
	Limit      int    `json:"limit"`
}

func (req evaluationRequest) validate() error {
	switch {
	case strings.TrimSpace(req.DatasetDir) == "":
		return errors.New("missing dataset_dir")
	case req.Limit < 0:
		return errors.New("limit must not be negative")
	}
	return nil
}

// HandleEvaluations handles POST /evaluations and GET /evaluations.
func (h *EvaluationsHandler) HandleEvaluations(w http.ResponseWriter, r *http.Request) {
	const op = "api.evaluations"
	switch r.Method {
	case http.MethodPost:
		var req evaluationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}

		status, err := h.deps.StartEvaluation(r.Context(), req.DatasetDir, req.Limit)
		if errors.Is(err, ErrBackpressure) {
			writeError(w, http.StatusTooManyRequests, "backpressure", NewKind(op, ErrBackpressure))
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_dataset", Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusAccepted, status)

	case http.MethodGet:
		statuses, err := h.deps.ListRuns(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
			return
		}
		writeJSON(w, http.StatusOK, statuses)

	default:
		http.NotFound(w, r)
	}
}

// HandleGetEvaluation handles GET /evaluations/{id} requests.
func (h *EvaluationsHandler) HandleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_evaluation"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/evaluations/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	status, err := h.deps.RunStatus(r.Context(), id)
	if errors.Is(err, runs.ErrUnknownRun) {
		writeError(w, http.StatusNotFound, "unknown_run", Wrap(op, err))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, status)
}
