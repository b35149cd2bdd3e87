package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/meetslot/services/booking-service/internal/apperror"
)

type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps service errors onto statuses. Unexpected errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *apperror.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation", Message: "request is invalid", Fields: verr.FieldErrors})
	case errors.Is(err, apperror.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "conflict", Message: err.Error()})
	case errors.Is(err, apperror.ErrAlreadyCancelled):
		writeJSON(w, http.StatusConflict, errorBody{Error: "already_cancelled", Message: err.Error()})
	case errors.Is(err, apperror.ErrStaleConfig):
		writeJSON(w, http.StatusConflict, errorBody{Error: "stale_config", Message: apperror.ErrStaleConfig.Error()})
	case errors.Is(err, apperror.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "not found"})
	case errors.Is(err, apperror.ErrUnauthorized):
		Unauthorized(w, r)
	default:
		logger.ErrorContext(r.Context(), "request failed",
			"err", err,
			"error_kind", apperror.Kind(err),
			"method", r.Method,
			"path", r.URL.Path,
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal server error"})
	}
}

// Unauthorized is the response for a missing or wrong admin key.
func Unauthorized(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "admin key required"})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method_not_allowed", Message: "method not allowed"})
}

// decodeJSON reads one JSON object from the request body.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperror.Field("body", "request body too large")
		}
		return apperror.Field("body", "must be a JSON object")
	}
	return nil
}
