package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
)

// APIError represents an API error.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common API errors
var (
	ErrBadRequest = &APIError{
		Status:  http.StatusBadRequest,
		Code:    "bad_request",
		Message: "report_type is only accepted for the report feature",
	}
	ErrInvalidFingerprint = &APIError{
		Status:  http.StatusBadRequest,
		Code:    "invalid_fingerprint",
		Message: "Device fingerprint is missing or too long",
	}
	ErrConflict = &APIError{
		Status:  http.StatusConflict,
		Code:    "consume_conflict",
		Message: "The balance was spent by a concurrent request; retry",
	}
	ErrUnavailable = &APIError{
		Status:  http.StatusServiceUnavailable,
		Code:    "store_unavailable",
		Message: "Entitlement storage is temporarily unavailable",
	}
	ErrInternalServer = &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "Internal server error",
	}
)

// errorFor maps a service error to its API error.
func errorFor(err error) *APIError {
	switch {
	case errors.Is(err, domain.ErrInvalidFingerprint):
		return ErrInvalidFingerprint
	case errors.Is(err, domain.ErrStoreUnavailable):
		return ErrUnavailable
	default:
		return ErrInternalServer
	}
}
