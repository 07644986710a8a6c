package neo

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrExhaustedRetries is matched by a FetchError once every attempt failed.
	ErrExhaustedRetries = errors.New("exhausted retries")
	// ErrPersistence marks archive failures; they abort a crawl.
	ErrPersistence = errors.New("archive unavailable")
	// ErrNotFound signals that an archived row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidWindow rejects malformed feed date windows.
	ErrInvalidWindow = errors.New("invalid date window")
)

// StatusError reports a non-2xx provider response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, http.StatusText(e.Code))
}

// FetchError is returned by the fetcher after its final attempt failed.
type FetchError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

// Unwrap exposes the last attempt's cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets callers match ErrExhaustedRetries.
func (e *FetchError) Is(target error) bool {
	return target == ErrExhaustedRetries
}
