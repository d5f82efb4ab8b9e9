package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrResponseTooLarge is returned when a response body exceeds the client's
// size limit. The body is discarded rather than truncated.
var ErrResponseTooLarge = errors.New("response too large")

// APIError is a non-2xx response. Bodies in the RPC error shape
// {"Message": ..., "Code": ..., "Type": "error"} are decoded into it.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"Message"`
	Code       int    `json:"Code"`
	Type       string `json:"Type"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Temporary reports whether repeating the request may succeed. A decoded RPC
// error is a definite answer from the daemon even when sent with a 5xx status.
func (e *APIError) Temporary() bool {
	if e.Type == "error" {
		return false
	}
	return isRetryableStatus(e.StatusCode)
}

// NotFound reports whether the resource is absent.
func (e *APIError) NotFound() bool {
	if e.StatusCode == http.StatusNotFound {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "not pinned") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "no link named")
}

// Unauthorized reports an authentication or permission failure.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// QuotaExceeded reports a storage or rate quota rejection.
func (e *APIError) QuotaExceeded() bool {
	return e.StatusCode == http.StatusRequestEntityTooLarge ||
		e.StatusCode == http.StatusInsufficientStorage ||
		e.StatusCode == http.StatusPaymentRequired
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr = &APIError{Message: strings.TrimSpace(string(body))}
	}
	apiErr.StatusCode = status
	return apiErr
}

// isRetryableStatus checks if an HTTP status code is retryable.
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusServiceUnavailable ||
		status == http.StatusBadGateway ||
		status == http.StatusGatewayTimeout ||
		(status >= 500 && status < 600)
}
