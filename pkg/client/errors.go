package client

import (
	"errors"
	"fmt"
)

// ErrInvalidOffset is returned by FetchPage for a negative offset or one that
// is not a multiple of the page size.
var ErrInvalidOffset = errors.New("invalid page offset")

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents connection failures, timeouts and
	// truncated bodies.
	ErrorClassNetwork ErrorClass = "network"
)

// ISSError is a failed ISS request with its classification.
type ISSError struct {
	StatusCode int
	ErrorClass ErrorClass
	Endpoint   string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ISSError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ISS %s error (status %d) %s: %s: %v",
			e.ErrorClass, e.StatusCode, e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("ISS %s error (status %d) %s: %s",
		e.ErrorClass, e.StatusCode, e.Endpoint, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ISSError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether another attempt may succeed.
func (e *ISSError) IsRetryable() bool {
	return shouldRetry(e.ErrorClass)
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// 4xx: the same request will fail the same way
		return false
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
