package handler

// Response helpers: every API endpoint sends JSON through writeJSON and
// every failure goes through writeError, so the error body always has the
// same shape:
//
//	{"error": "CODE_NOT_FOUND", "message": "no snippet found with id abc123"}
//
// The error field carries the stable machine-readable code from apperror;
// clients switch on it and never parse the message.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/codether/codether/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code. Headers and
// status must go out before the body; once Encode writes, they are sent.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers already sent, all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to its HTTP status and sends it. The
// service layer knows nothing about HTTP; this is the one place where
// apperror sentinels become status codes.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrViewSecretRequired):
			status = http.StatusUnauthorized
		case errors.Is(err, apperror.ErrInvalidSecret),
			errors.Is(err, apperror.ErrEditSecretNotSet):
			status = http.StatusForbidden
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
		case errors.Is(err, apperror.ErrSizeExceeded):
			status = http.StatusRequestEntityTooLarge
		case errors.Is(err, apperror.ErrAllocationExhausted):
			status = http.StatusServiceUnavailable
		case errors.Is(err, apperror.ErrStorage):
			status = http.StatusBadGateway
		}

		writeJSON(w, status, ErrorResponse{
			Error:   appErr.Code,
			Message: appErr.Message,
		})
		return
	}

	// Unknown error. Never leak internals (SQL, file paths) to the client.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "INTERNAL",
		Message: "an internal error occurred",
	})
}
