package dto

import (
	"net/http"
	"testing"

	"github.com/bloodchain/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

func TestFromDomainCode(t *testing.T) {
	tests := []struct {
		domain string
		code   string
		status int
	}{
		{shared.CodeNotFound, ErrCodeNotFound, http.StatusNotFound},
		{shared.CodeValidationFailed, ErrCodeValidation, http.StatusBadRequest},
		{shared.CodeInvalidTransition, ErrCodeInvalidTransition, http.StatusUnprocessableEntity},
		{shared.CodeInventoryExhausted, ErrCodeInventoryExhausted, http.StatusUnprocessableEntity},
		{shared.CodeConflict, ErrCodeConflict, http.StatusConflict},
		{shared.CodeIntegrityFailure, ErrCodeIntegrityFailure, http.StatusInternalServerError},
		{"SOMETHING_ELSE", ErrCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			code := FromDomainCode(tt.domain)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, GetHTTPStatus(code))
		})
	}
}

func TestResponses(t *testing.T) {
	ok := NewSuccessResponse(map[string]int{"n": 1})
	assert.True(t, ok.Success)
	assert.Nil(t, ok.Error)

	failed := NewErrorResponse(ErrCodeNotFound, "blood unit not found: BU-2026-000009", "req-1")
	assert.False(t, failed.Success)
	assert.Equal(t, "req-1", failed.Error.RequestID)
}
