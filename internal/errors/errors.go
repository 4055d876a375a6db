// Package errors provides standardized error handling for the tracker service.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code for the tracker service.
type ErrorCode string

const (
	// Validation errors
	TRACKER_VALIDATION  ErrorCode = "TRACKER_VALIDATION"  // Required field missing or value out of range
	TRACKER_BAD_REQUEST ErrorCode = "TRACKER_BAD_REQUEST" // Malformed request

	// Authentication errors
	TRACKER_AUTHN ErrorCode = "TRACKER_AUTHN" // Missing or invalid bearer token

	// Resource errors
	TRACKER_NOT_FOUND  ErrorCode = "TRACKER_NOT_FOUND"  // Record not found
	TRACKER_CONFLICT   ErrorCode = "TRACKER_CONFLICT"   // Record already exists
	TRACKER_MEDIA_SIZE ErrorCode = "TRACKER_MEDIA_SIZE" // Cover image too large
	TRACKER_MEDIA_TYPE ErrorCode = "TRACKER_MEDIA_TYPE" // Cover image type not allowed

	// Collaborator errors
	TRACKER_FETCH       ErrorCode = "TRACKER_FETCH"       // Metadata provider failed
	TRACKER_PERSISTENCE ErrorCode = "TRACKER_PERSISTENCE" // Database operation failed

	// Server errors
	TRACKER_INTERNAL    ErrorCode = "TRACKER_INTERNAL"    // Internal server error
	TRACKER_UNAVAILABLE ErrorCode = "TRACKER_UNAVAILABLE" // Dependency not configured or unreachable
)

// Error represents a standardized error response.
type Error struct {
	Code          ErrorCode `json:"code"`
	Message       string    `json:"message"`
	CorrelationID string    `json:"correlationId"`
	Details       any       `json:"details,omitempty"`
	HTTPStatus    int       `json:"-"`
}

// New creates a new Error with the specified code and message.
func New(code ErrorCode, message string, correlationID string) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// NewWithDetails creates a new Error with the specified code, message, and details.
func NewWithDetails(code ErrorCode, message string, correlationID string, details any) *Error {
	e := New(code, message, correlationID)
	e.Details = details
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithCorrelationID returns a copy of e stamped with the request's correlation id.
func (e *Error) WithCorrelationID(id string) *Error {
	cp := *e
	cp.CorrelationID = id
	return &cp
}

// Validation builds a TRACKER_VALIDATION error carrying field-level problems.
func Validation(fields map[string]string) *Error {
	return NewWithDetails(TRACKER_VALIDATION, "validation failed", "", fields)
}

// httpStatusCodeForCode maps error codes to HTTP status codes.
func httpStatusCodeForCode(code ErrorCode) int {
	switch code {
	case TRACKER_VALIDATION, TRACKER_BAD_REQUEST:
		return http.StatusBadRequest
	case TRACKER_AUTHN:
		return http.StatusUnauthorized
	case TRACKER_NOT_FOUND:
		return http.StatusNotFound
	case TRACKER_CONFLICT:
		return http.StatusConflict
	case TRACKER_MEDIA_SIZE:
		return http.StatusRequestEntityTooLarge
	case TRACKER_MEDIA_TYPE:
		return http.StatusUnsupportedMediaType
	case TRACKER_FETCH:
		return http.StatusBadGateway
	case TRACKER_UNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
