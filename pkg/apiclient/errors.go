package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// APIError is an RFC 7807 problem returned by the server.
type APIError struct {
	StatusCode int    `json:"status"`
	Title      string `json:"title"`
	Detail     string `json:"detail,omitempty"`

	// Kind is the broker failure class: Validation, Capacity,
	// Unavailable, NotFound or Internal.
	Kind string `json:"kind,omitempty"`

	// Validator names the validator that rejected a connect.
	Validator string `json:"validator,omitempty"`

	// RetryAfter is parsed from the Retry-After header.
	RetryAfter time.Duration `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Title
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	if e.Validator != "" {
		msg += " (validator " + e.Validator + ")"
	}
	return msg
}

// IsAuthError reports a 401 or 403.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsCapacity reports a full pool or session limit. The request may be
// retried after RetryAfter.
func (e *APIError) IsCapacity() bool {
	return e.Kind == "Capacity"
}

// AsAPIError unwraps err to an *APIError.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
