// Package sources fetches price quotes from configured HTTP JSON endpoints.
package sources

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction is the parent of all path extraction failures.
	ErrExtraction = errors.New("price extraction failed")
	// ErrPathNotFound indicates that a path segment could not be resolved.
	ErrPathNotFound = fmt.Errorf("%w: path not found", ErrExtraction)
	// ErrNotNumeric indicates that the value at the path is not a finite number.
	ErrNotNumeric = fmt.Errorf("%w: value is not numeric", ErrExtraction)

	// ErrTimeout indicates that the fetch deadline expired.
	ErrTimeout = errors.New("source fetch timed out")
	// ErrTransport indicates a network or transport failure.
	ErrTransport = errors.New("transport error")
	// ErrUnexpectedStatus indicates an unexpected HTTP status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
	// ErrDecode indicates that the response body is not valid JSON.
	ErrDecode = errors.New("failed to decode response")
	// ErrNonPositive indicates that the extracted price is zero, negative or non-finite.
	ErrNonPositive = errors.New("price must be finite and positive")
)

// Reason classifies a fetch error into a short label for logs and metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrUnexpectedStatus):
		return "status"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrExtraction):
		return "extraction"
	case errors.Is(err, ErrNonPositive):
		return "non_positive"
	default:
		return "unknown"
	}
}
