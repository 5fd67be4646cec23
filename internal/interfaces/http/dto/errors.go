package dto

import (
	"net/http"

	"github.com/bloodchain/backend/internal/domain/shared"
)

// Error codes returned by the ops API
const (
	ErrCodeInternal           = "ERR_INTERNAL"
	ErrCodeBadRequest         = "ERR_BAD_REQUEST"
	ErrCodeNotFound           = "ERR_NOT_FOUND"
	ErrCodeValidation         = "ERR_VALIDATION"
	ErrCodeInvalidTransition  = "ERR_INVALID_TRANSITION"
	ErrCodeIneligible         = "ERR_INELIGIBLE"
	ErrCodeInventoryExhausted = "ERR_INVENTORY_EXHAUSTED"
	ErrCodeIntegrityFailure   = "ERR_INTEGRITY_FAILURE"
	ErrCodeConflict           = "ERR_CONFLICT"
	ErrCodeUnavailable        = "ERR_SERVICE_UNAVAILABLE"
)

// domainCodes maps domain error codes to API codes
var domainCodes = map[string]string{
	shared.CodeNotFound:           ErrCodeNotFound,
	shared.CodeValidationFailed:   ErrCodeValidation,
	shared.CodeInvalidTransition:  ErrCodeInvalidTransition,
	shared.CodeIneligible:         ErrCodeIneligible,
	shared.CodeInventoryExhausted: ErrCodeInventoryExhausted,
	shared.CodeIntegrityFailure:   ErrCodeIntegrityFailure,
	shared.CodeConflict:           ErrCodeConflict,
}

// ErrorCodeHTTPStatus maps API codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeInvalidTransition:  http.StatusUnprocessableEntity,
	ErrCodeIneligible:         http.StatusUnprocessableEntity,
	ErrCodeInventoryExhausted: http.StatusUnprocessableEntity,
	ErrCodeIntegrityFailure:   http.StatusInternalServerError,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeUnavailable:        http.StatusServiceUnavailable,
}

// FromDomainCode converts a domain error code to an API code. Unknown codes
// become ERR_INTERNAL.
func FromDomainCode(code string) string {
	if c, ok := domainCodes[code]; ok {
		return c
	}
	return ErrCodeInternal
}

// GetHTTPStatus returns the HTTP status for an API code, 500 if unknown
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
