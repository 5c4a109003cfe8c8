package apiclient

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport wraps network level failures (dial, timeout, reset).
	ErrTransport = errors.New("school api unreachable")
	// ErrUnauthorized is returned for 401/403 responses and missing or expired tokens.
	ErrUnauthorized = errors.New("school api rejected credentials")
	// ErrNotSuccessful matches any well-formed envelope carrying IsSuccess=false.
	ErrNotSuccessful = errors.New("school api reported failure")
	// ErrNoCredentials is what an AuthContext wraps when it holds no token.
	// Only this, an empty token or a 401/403 logs the operator out.
	ErrNoCredentials = errors.New("no stored credentials")
	// ErrDecode is returned when a response body is not a valid envelope.
	ErrDecode = errors.New("school api response malformed")
)

// HTTPError is a non-2xx response other than 401/403.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("school api %s: %s", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("school api %s: %s: %s", e.Endpoint, e.Status, e.Body)
}

// EnvelopeError carries the Message of an IsSuccess=false envelope.
type EnvelopeError struct {
	Endpoint string
	Message  string
}

func (e *EnvelopeError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("school api %s: request was not successful", e.Endpoint)
	}
	return fmt.Sprintf("school api %s: %s", e.Endpoint, e.Message)
}

// Is lets errors.Is(err, ErrNotSuccessful) match.
func (e *EnvelopeError) Is(target error) bool {
	return target == ErrNotSuccessful
}

// Message extracts the operator facing text of an upstream failure.
func Message(err error) string {
	var env *EnvelopeError
	if errors.As(err, &env) && env.Message != "" {
		return env.Message
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "session expired, please sign in again"
	case errors.Is(err, ErrTransport):
		return "school service is unreachable"
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("school service error (%d)", httpErr.StatusCode)
	}
	return "operation failed"
}
