package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassOverload represents the upstream overload status.
	ErrorClassOverload ErrorClass = "overload"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents malformed response bodies.
	ErrorClassDecode ErrorClass = "decode"

	// ErrorClassAuth represents ticket failures.
	ErrorClassAuth ErrorClass = "auth"
)

// ErrServiceError is matched by every ServiceError.
var ErrServiceError = errors.New("UTS service error")

// OverloadError is returned when UTS answers with the overload status. The
// service failed rather than returning a structured error, so the call chain
// is aborted. Body carries the response for diagnosis.
type OverloadError struct {
	StatusCode int
	URL        string
	Body       []byte
}

// Error implements the error interface.
func (e *OverloadError) Error() string {
	return fmt.Sprintf("UTS overloaded (status %d %s) for %s: %s",
		e.StatusCode, http.StatusText(e.StatusCode), e.URL, truncate(e.Body, 200))
}

// TransportError is a network-level failure performing a request.
type TransportError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("UTS %s error for %s: %v", ErrorClassNetwork, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError is a response body that is not the expected JSON envelope.
type DecodeError struct {
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("UTS %s error (status %d) for %s: %v",
		ErrorClassDecode, e.StatusCode, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ServiceError is the recoverable structured error a UTS page may carry
// (e.g. "No results found"). It is reported through Result, not returned.
type ServiceError struct {
	Message string
	Page    int
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("UTS service error on page %d: %s", e.Page, e.Message)
}

// Is reports ErrServiceError as a match for any ServiceError.
func (e *ServiceError) Is(target error) bool {
	return target == ErrServiceError
}

// classifyStatus categorizes an HTTP status for observability.
func classifyStatus(status, overload int) ErrorClass {
	switch {
	case status == overload:
		return ErrorClassOverload
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
