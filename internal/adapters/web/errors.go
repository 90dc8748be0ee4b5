package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"fuel-ledger/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeCreated writes a JSON response with status 201.
func writeCreated(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError maps a core error onto an HTTP status and code.
// Anything unrecognised is a 500 and is logged.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case errors.Is(err, core.ErrUnbalancedLedger):
		status, code = http.StatusUnprocessableEntity, "UNBALANCED_LEDGER"
	case errors.Is(err, core.ErrAccountCategoryMismatch):
		status, code = http.StatusUnprocessableEntity, "ACCOUNT_CATEGORY_MISMATCH"
	case errors.Is(err, core.ErrMissingAccount):
		status, code = http.StatusUnprocessableEntity, "MISSING_ACCOUNT"
	case errors.Is(err, core.ErrInactiveAccount):
		status, code = http.StatusUnprocessableEntity, "INACTIVE_ACCOUNT"
	case errors.Is(err, core.ErrEmptyTransaction):
		status, code = http.StatusUnprocessableEntity, "EMPTY_TRANSACTION"
	case errors.Is(err, core.ErrInvalidInput):
		status, code = http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, core.ErrInvalidPeriod):
		status, code = http.StatusBadRequest, "INVALID_PERIOD"
	case errors.Is(err, core.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, core.ErrConcurrentApproval):
		status, code = http.StatusConflict, "CONCURRENT_APPROVAL"
	case errors.Is(err, core.ErrDuplicateTransaction):
		status, code = http.StatusConflict, "DUPLICATE_TRANSACTION"
	case errors.Is(err, core.ErrInvalidTransition):
		status, code = http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, core.ErrLockNotObtained):
		status, code = http.StatusConflict, "LOCKED"
	}
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithFields(map[string]any{
			"path":       r.URL.Path,
			"request_id": requestIDFromContext(r.Context()),
		}).Error("request failed")
		writeError(w, r, "internal server error", code, status)
		return
	}
	writeError(w, r, err.Error(), code, status)
}
