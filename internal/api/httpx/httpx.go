package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gigledger/escrow/internal/api/validate"
	"github.com/gigledger/escrow/internal/services"
)

type APIError struct {
	Error     string      `json:"error"`
	Code      string      `json:"code"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, code, msg string, details interface{}) {
	WriteJSON(w, status, APIError{
		Error:   msg,
		Code:    code,
		Details: details,
	})
}

// WriteServiceError maps the service error taxonomy onto HTTP. Anything it
// does not recognise is a system failure the caller may retry.
func WriteServiceError(w http.ResponseWriter, err error) {
	var fields validate.Errs
	switch {
	case errors.As(err, &fields):
		WriteError(w, http.StatusBadRequest, "validation_failed", "invalid request", fields)
	case errors.Is(err, services.ErrBelowMinimum):
		WriteError(w, http.StatusUnprocessableEntity, "below_minimum", err.Error(), nil)
	case errors.Is(err, services.ErrValidation):
		WriteError(w, http.StatusBadRequest, "validation_failed", err.Error(), nil)
	case errors.Is(err, services.ErrInvalidSignature):
		WriteError(w, http.StatusBadRequest, "invalid_signature", err.Error(), nil)
	case errors.Is(err, services.ErrForbidden):
		WriteError(w, http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, services.ErrNotFound):
		WriteError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, services.ErrInvalidStateTransition):
		WriteError(w, http.StatusConflict, "invalid_state_transition", err.Error(), nil)
	case errors.Is(err, services.ErrConflict):
		WriteError(w, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, services.ErrInsufficientBalance):
		WriteError(w, http.StatusUnprocessableEntity, "insufficient_balance", err.Error(), nil)
	default:
		slog.Error("request failed", "err", err)
		WriteJSON(w, http.StatusInternalServerError, APIError{
			Error:     "internal error",
			Code:      "system_failure",
			Retryable: true,
		})
	}
}
