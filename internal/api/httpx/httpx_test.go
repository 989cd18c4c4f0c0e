package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigledger/escrow/internal/api/validate"
	"github.com/gigledger/escrow/internal/services"
)

func TestWriteServiceError(t *testing.T) {
	cases := []struct {
		err  error
		code int
		name string
	}{
		{validate.Errs{{Field: "amount", Msg: "required"}}, http.StatusBadRequest, "validation_failed"},
		{fmt.Errorf("%w: title", services.ErrValidation), http.StatusBadRequest, "validation_failed"},
		{fmt.Errorf("%w: minimum is 10.00", services.ErrBelowMinimum), http.StatusUnprocessableEntity, "below_minimum"},
		{services.ErrInvalidSignature, http.StatusBadRequest, "invalid_signature"},
		{fmt.Errorf("%w: admin only", services.ErrForbidden), http.StatusForbidden, "forbidden"},
		{fmt.Errorf("%w: milestone", services.ErrNotFound), http.StatusNotFound, "not_found"},
		{fmt.Errorf("%w: pending -> released", services.ErrInvalidStateTransition), http.StatusConflict, "invalid_state_transition"},
		{services.ErrConflict, http.StatusConflict, "conflict"},
		{fmt.Errorf("wrap: %w", services.ErrInsufficientBalance), http.StatusUnprocessableEntity, "insufficient_balance"},
		{errors.New("connection reset"), http.StatusInternalServerError, "system_failure"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteServiceError(rec, tc.err)
			assert.Equal(t, tc.code, rec.Code)

			var body APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.name, body.Code)
			assert.Equal(t, tc.code == http.StatusInternalServerError, body.Retryable)
		})
	}
}
