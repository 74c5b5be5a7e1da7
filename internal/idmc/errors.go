// Package idmc provides HTTP clients for the Informatica IDMC login and JWT
// endpoints and the CDGC catalog REST API, with retry of idempotent reads,
// structured error decoding, and error classification.
package idmc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, idmc.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("idmc: bad request")
	ErrUnauthorized = errors.New("idmc: unauthorized")
	ErrForbidden    = errors.New("idmc: forbidden")
	ErrNotFound     = errors.New("idmc: not found")
	ErrConflict     = errors.New("idmc: conflict")
	ErrThrottled    = errors.New("idmc: throttled")
	ErrServerError  = errors.New("idmc: server error")

	// ErrAuthentication is returned when login or JWT generation fails.
	// It covers bad credentials, a wrong login URL, and malformed auth responses.
	ErrAuthentication = errors.New("idmc: authentication failed")
)

// APIError wraps a sentinel error with the HTTP status code, request ID,
// the decoded server message, and the raw response body.
type APIError struct {
	StatusCode int
	RequestID  string
	Message    string // structured message if the body decoded, else the raw body
	Body       string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("idmc: API Error %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("idmc: API Error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// newAPIError builds an APIError from a failed response body.
func newAPIError(status int, requestID string, body []byte) *APIError {
	return &APIError{
		StatusCode: status,
		RequestID:  requestID,
		Message:    decodeErrorMessage(body),
		Body:       string(body),
		Err:        classifyStatus(status),
	}
}

// errorEnvelope covers the error shapes returned by the IDMC and CDGC
// services. Each service nests the human message differently.
type errorEnvelope struct {
	Message      string `json:"message"`
	ErrorMessage string `json:"errorMessage"`
	Detail       string `json:"detail"`
	Error        *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// decodeErrorMessage extracts the server message from an error body.
// If the body is not JSON, or is JSON without a known message field, the
// raw body text is returned verbatim so the original detail is never lost.
func decodeErrorMessage(body []byte) string {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return "(empty response body)"
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return raw
	}

	switch {
	case env.Error != nil && env.Error.Message != "":
		return env.Error.Message
	case env.Message != "":
		return env.Message
	case env.ErrorMessage != "":
		return env.ErrorMessage
	case env.Detail != "":
		return env.Detail
	default:
		return raw
	}
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
// Only consulted for idempotent requests.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsServerFault reports whether err is an API error with a 5xx status.
func IsServerFault(err error) bool {
	return errors.Is(err, ErrServerError)
}
