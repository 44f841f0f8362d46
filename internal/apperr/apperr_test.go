package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusAndKind(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name      string
		err       error
		kind      Kind
		status    int
		retryable bool
	}{
		{"validation", Validation("bad", nil), KindValidation, http.StatusBadRequest, false},
		{"unauthorized", Unauthorized("no token", nil), KindUnauthorized, http.StatusUnauthorized, false},
		{"forbidden", Forbidden("expired", nil), KindForbidden, http.StatusForbidden, false},
		{"not found", NotFound("missing", nil), KindNotFound, http.StatusNotFound, false},
		{"conflict", Conflict("exists", nil), KindConflict, http.StatusConflict, false},
		{"derivation", DerivationFailed("rolled back", cause), KindDerivationFailed, http.StatusInternalServerError, true},
		{"unavailable", StoreUnavailable("down", cause), KindStoreUnavailable, http.StatusServiceUnavailable, true},
		{"plain", cause, KindInternal, http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
			assert.Equal(t, tt.status, Status(tt.err))
			assert.Equal(t, tt.retryable, Retryable(tt.err))
		})
	}
}

func TestWrappedErrorsStayClassified(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("ingest reading r1: %w", StoreUnavailable("store unavailable", cause))

	assert.True(t, Is(err, KindStoreUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "store unavailable", Public(err))
	assert.Equal(t, "internal server error", Public(cause))
}
