package shared

import (
	"errors"
	"fmt"
)

// Error codes surfaced to callers. Callers map them onto their own protocol
// (NOT_FOUND to 404, the rule violations to 400).
const (
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidTransition  = "INVALID_TRANSITION"
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeIneligible         = "INELIGIBLE"
	CodeInventoryExhausted = "INVENTORY_EXHAUSTED"
	CodeIntegrityFailure   = "INTEGRITY_FAILURE"
	CodeConflict           = "CONFLICT"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target carries the same code, so a specific error
// matches its sentinel with errors.Is.
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if !errors.As(target, &de) {
		return false
	}
	return de.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound           = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidTransition  = NewDomainError(CodeInvalidTransition, "Status transition not allowed")
	ErrValidation         = NewDomainError(CodeValidationFailed, "Validation failed")
	ErrIneligible         = NewDomainError(CodeIneligible, "Donor is not eligible")
	ErrInventoryExhausted = NewDomainError(CodeInventoryExhausted, "No matching inventory available")
	ErrIntegrityFailure   = NewDomainError(CodeIntegrityFailure, "Integrity check failed")
	ErrConflict           = NewDomainError(CodeConflict, "Resource was modified by another process")
)

// NotFound builds a NOT_FOUND error naming the missing resource.
func NotFound(kind, id string) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s not found: %s", kind, id))
}

// Validation builds a VALIDATION_FAILED error.
func Validation(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidationFailed, fmt.Sprintf(format, args...))
}

// InventoryExhaustedError is returned when no matching component is available.
// Total and Available are diagnostics for the requested component type.
type InventoryExhaustedError struct {
	DomainError
	Total     int64
	Available int64
}

// NewInventoryExhaustedError builds the error with the standard message.
func NewInventoryExhaustedError(componentType, bloodGroup string, total, available int64) *InventoryExhaustedError {
	return &InventoryExhaustedError{
		DomainError: DomainError{
			Code: CodeInventoryExhausted,
			Message: fmt.Sprintf(
				"No available %s components found for blood group %s. Total in system: %d, Available: %d.",
				componentType, bloodGroup, total, available),
		},
		Total:     total,
		Available: available,
	}
}

// Unwrap exposes the embedded DomainError so errors.Is matches ErrInventoryExhausted.
func (e *InventoryExhaustedError) Unwrap() error {
	return &e.DomainError
}

// IsCode reports whether err is a DomainError with the given code.
func IsCode(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}
