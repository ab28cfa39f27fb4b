package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// FetchError reports a failed backend request. Status is the HTTP status
// when one was received, otherwise 0.
type FetchError struct {
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "fetch failed"
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// StatusText returns the text for Status, or "" when no status was received.
func (e *FetchError) StatusText() string {
	if e.Status == 0 {
		return ""
	}
	return http.StatusText(e.Status)
}

// AdapterError reports a response that could not be normalized.
type AdapterError struct {
	Message string
	Err     error
}

func (e *AdapterError) Error() string {
	if e.Err != nil {
		return "unexpected response: " + e.Message + ": " + e.Err.Error()
	}
	return "unexpected response: " + e.Message
}

func (e *AdapterError) Unwrap() error { return e.Err }

// IsFetchError reports whether err contains a *FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}

// IsAdapterError reports whether err contains an *AdapterError.
func IsAdapterError(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae)
}

// Retryable reports whether another attempt could succeed. Adapter errors
// and cancellations are final.
func Retryable(err error) bool {
	if err == nil || IsAdapterError(err) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// AsFetchError classifies err: adapter and fetch errors pass through,
// anything else is wrapped in a *FetchError.
func AsFetchError(err error) error {
	if err == nil || IsFetchError(err) || IsAdapterError(err) {
		return err
	}
	return &FetchError{Message: err.Error(), Err: err}
}
