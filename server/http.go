package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/poiesic/docreply/core"
	"github.com/poiesic/docreply/extract"
	"github.com/poiesic/docreply/ingestion"
	"github.com/poiesic/docreply/storage"
)

type dataResponse struct {
	Data any `json:"data,omitempty"`
}

type errorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, dataResponse{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeErr maps err onto a status code. Unexpected errors are logged and
// reported without detail.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error, attrs ...any) {
	var fields validator.ValidationErrors
	switch {
	case errors.As(err, &fields):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation failed", Details: fieldMessages(fields)})
	case errors.Is(err, core.ErrValidation),
		errors.Is(err, core.ErrInvalidKind),
		errors.Is(err, core.ErrEmptyScope),
		errors.Is(err, core.ErrEmptyDocument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, ingestion.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrNoDocuments):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrTenantExists), errors.Is(err, storage.ErrDuplicateKey):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, extract.ErrUnsupportedMode):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, extract.ErrUnsupportedType):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, extract.ErrExtractionFailed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, extract.ErrOCRUnavailable), errors.Is(err, extract.ErrTranscriberUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ingestion.ErrBusy):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error("request failed", append([]any{"path", r.URL.Path, "err", err}, attrs...)...)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON body into v and validates its struct tags.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return &core.ValidationError{Field: "body", Reason: fmt.Sprintf("is not valid JSON: %v", err)}
	}
	return s.validate.Struct(v)
}

func fieldMessages(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			out[field] = field + " is required"
		case "oneof":
			out[field] = fmt.Sprintf("%s must be one of: %s", field, fe.Param())
		default:
			out[field] = fmt.Sprintf("%s failed on '%s'", field, fe.Tag())
		}
	}
	return out
}
