package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Shailesh-2128/heart-leaf-blooms-backend/internal/domain"
)

type errorBody struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func WriteJSON(logger *slog.Logger, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(logger *slog.Logger, w http.ResponseWriter, status int, message string) {
	WriteJSON(logger, w, status, errorBody{Error: message})
}

// WriteDomainError maps a domain error onto a response. Anything outside the
// domain taxonomy is logged and reported as an internal error.
func WriteDomainError(logger *slog.Logger, w http.ResponseWriter, err error) {
	status, retryable := StatusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		message = "internal server error"
	}
	WriteJSON(logger, w, status, errorBody{Error: message, Retryable: retryable})
}

// StatusOf returns the HTTP status for err and whether the client may retry.
func StatusOf(err error) (int, bool) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrSignatureMismatch):
		return http.StatusBadRequest, false
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, false
	case errors.Is(err, domain.ErrEmptyCart), errors.Is(err, domain.ErrDuplicatePayment):
		return http.StatusConflict, false
	case domain.IsRetryable(err):
		return http.StatusServiceUnavailable, true
	default:
		return http.StatusInternalServerError, false
	}
}

// DecodeJSON reads a JSON body, rejecting unknown fields.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(domain.ErrValidation, err)
	}
	return nil
}
