package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyBody is returned for a 2xx response without content.
	ErrEmptyBody = errors.New("empty response body")
	// ErrPermanent marks failures that retrying cannot fix (e.g. robots.txt).
	ErrPermanent = errors.New("permanent fetch failure")
	// ErrDeclaredCountMissing means page 0 carried no usable item count marker.
	ErrDeclaredCountMissing = errors.New("declared item count not found")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// NetworkError is returned once the retry bound is exhausted for a URL.
type NetworkError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the retry policy gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}
