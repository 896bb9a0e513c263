package sheets

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed covers network failures, non-2xx statuses and empty bodies.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrInvalidFormat covers envelope and JSON-shape violations of an export response.
	ErrInvalidFormat = errors.New("invalid format")
)

// FetchError is a FetchFailed condition. Status is 0 when no response was received.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch failed: HTTP %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}

func invalidFormat(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidFormat}, args...)...)
}
