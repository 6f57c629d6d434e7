package exchange

import (
	"encoding/json"
	"fmt"
)

// TransportError means the request never produced a usable HTTP response:
// connection refused, DNS failure, timeout or a truncated body.
type TransportError struct {
	Method string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Method, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusError is a non-2xx response. Callers treat it like a
// TransportError.
type HTTPStatusError struct {
	Method     string
	StatusCode int
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: server responded with a %d status code: %s", e.Method, e.StatusCode, truncate(e.Body, 256))
}

// APIError is a well-formed envelope whose code is not zero. Payload keeps
// the full response body for diagnosis.
type APIError struct {
	Method  string
	Code    int
	Message string
	Payload json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: api error (code: %d, message: %s)", e.Method, e.Code, e.Message)
}

func truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
