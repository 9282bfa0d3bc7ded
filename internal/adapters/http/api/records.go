package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/inkwell-ocr/inkwell/internal/domain/dedupe"
	"github.com/inkwell-ocr/inkwell/internal/domain/types"
	"github.com/inkwell-ocr/inkwell/pkg/metrics"
)

// RecordsDependencies defines the interface for record ingestion.
type RecordsDependencies interface {
	dedupe.Deduper
	IngestRecords(ctx context.Context, records []types.ValidationRecord) error
}

// RecordsHandler handles validation record ingestion.
type RecordsHandler struct {
	deps RecordsDependencies
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(deps RecordsDependencies) *RecordsHandler {
	return &RecordsHandler{deps: deps}
}

// recordsRequest mirrors the schema for POST /records.
type recordsRequest struct {
	Records []types.ValidationRecord `json:"records"`
}

func (req recordsRequest) validate() error {
	if len(req.Records) == 0 {
		return errors.New("missing records")
	}
	for _, rec := range req.Records {
		if strings.TrimSpace(rec.ID) == "" {
			return errors.New("missing record id")
		}
		if rec.RawConfidence < 0 || rec.RawConfidence > 1 {
			return errors.New("raw_confidence must be in [0,1]")
		}
	}
	return nil
}

// recordsResponse reports how the batch was handled.
type recordsResponse struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
}

// HandlePostRecords handles POST /records requests. Ingestion is
// idempotent per record id; duplicates are acknowledged but dropped.
func (h *RecordsHandler) HandlePostRecords(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_records"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req recordsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	// Idempotency check - mark records as seen first.
	fresh := make([]types.ValidationRecord, 0, len(req.Records))
	for _, rec := range req.Records {
		if h.deps.SeenAndRecord(r.Context(), rec.ID) {
			metrics.RecordRecordDuplicate()
			continue
		}
		fresh = append(fresh, rec)
	}

	if len(fresh) == 0 {
		writeJSON(w, http.StatusOK, recordsResponse{Duplicates: len(req.Records)})
		return
	}

	if err := h.deps.IngestRecords(r.Context(), fresh); err != nil {
		// Roll back the "seen" status so the batch can be retried.
		for _, rec := range fresh {
			h.deps.Unrecord(r.Context(), rec.ID)
		}
		writeError(w, http.StatusServiceUnavailable, "ingest_failed", Wrap(op, err))
		return
	}

	metrics.RecordRecordsIngested(len(fresh))
	writeJSON(w, http.StatusAccepted, recordsResponse{
		Accepted:   len(fresh),
		Duplicates: len(req.Records) - len(fresh),
	})
}
