package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/inkwell-ocr/inkwell/internal/domain/types"
)

// RecognizeDependencies defines the interface for recognition.
type RecognizeDependencies interface {
	Recognize(ctx context.Context, image []byte) (types.Recognition, error)
}

// RecognizeHandler handles recognition requests.
type RecognizeHandler struct {
	deps           RecognizeDependencies
	maxUploadBytes int64
}

// NewRecognizeHandler creates a new recognize handler.
func NewRecognizeHandler(deps RecognizeDependencies, maxUploadBytes int64) *RecognizeHandler {
	return &RecognizeHandler{deps: deps, maxUploadBytes: maxUploadBytes}
}

// HandleRecognize handles POST /recognize requests. The body is the raw
// image; multipart form uploads use the "image" field.
func (h *RecognizeHandler) HandleRecognize(w http.ResponseWriter, r *http.Request) {
	const op = "api.recognize"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	image, err := h.readImage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if len(image) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	rec, err := h.deps.Recognize(r.Context(), image)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "recognition_failed", Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// readImage extracts the image payload from either a multipart form or
// the raw request body, capped at maxUploadBytes.
func (h *RecognizeHandler) readImage(r *http.Request) ([]byte, error) {
	body := http.MaxBytesReader(nil, r.Body, h.maxUploadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			return nil, errors.New("malformed multipart form")
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return nil, errors.New("missing image field")
		}
		defer file.Close()
		return io.ReadAll(io.LimitReader(file, h.maxUploadBytes))
	}

	return io.ReadAll(body)
}
