package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrNoSourceURL       = errors.New("catalog: source url missing")
	ErrEmptyID           = errors.New("catalog: empty identifier")
	ErrMissingServerTime = errors.New("catalog: response has no server time")
)

// StatusError is returned when the service answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog: %s: unexpected status %s", e.URL, e.Status)
}

// DecodeError is returned when the response body is not a catalog document.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("catalog: %s: decode response: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
