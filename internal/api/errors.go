package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrTimeout is returned when a request does not settle within the
	// client timeout.
	ErrTimeout = errors.New("api: request timed out")
	// ErrNetwork is returned for DNS, connection and transport failures.
	ErrNetwork = errors.New("api: request failed")
	// ErrLoginRequired signals that the caller must authenticate first.
	ErrLoginRequired = errors.New("api: login required")
	// ErrAccessDenied signals that the session lacks the required role.
	ErrAccessDenied = errors.New("api: access denied")
	// ErrInvalidEnvelope is returned when a list response matches none of
	// the known shapes.
	ErrInvalidEnvelope = errors.New("api: unrecognized response envelope")
)

// Error is the uniform failure for a non-success HTTP status.
type Error struct {
	StatusCode int
	Message    string
	Code       string
	RequestID  string
}

func (e *Error) Error() string {
	return e.Message
}

// IsAuthFailure reports whether the status is 401 or 403.
func (e *Error) IsAuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// NewError creates an Error, defaulting the message to "HTTP <status>".
func NewError(statusCode int, message, code string) *Error {
	if strings.TrimSpace(message) == "" {
		message = fmt.Sprintf("HTTP %d", statusCode)
	}
	return &Error{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ValidationError is a client-side failure raised before any network call.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(v.FieldErrors))
	for k := range v.FieldErrors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v.FieldErrors[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// Add records a field level validation error.
func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// IsAuthFailure reports whether err carries a 401/403 response.
func IsAuthFailure(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.IsAuthFailure()
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Kind maps an error to a stable label used for logging and messaging.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrLoginRequired), errors.Is(err, ErrAccessDenied):
		return "auth"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsAuthFailure():
			return "auth"
		case apiErr.StatusCode >= 500:
			return "server"
		default:
			return "business"
		}
	}

	return "unexpected"
}

// Retryable reports whether a user-initiated retry can reasonably succeed.
func Retryable(err error) bool {
	switch Kind(err) {
	case "timeout", "network", "server":
		return true
	}
	return false
}
