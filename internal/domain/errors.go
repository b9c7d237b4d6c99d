package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type ErrorKind string

const (
	ErrorKindNone    ErrorKind = ""
	ErrorKindNetwork ErrorKind = "network"
	ErrorKindHTTP    ErrorKind = "http"
	ErrorKindQuota   ErrorKind = "quota"
	ErrorKindParse   ErrorKind = "parse"
	ErrorKindEmpty   ErrorKind = "empty"
)

// ErrEmptyResult marks a legitimate zero-result response. It is a status, not a
// failure, and never triggers fallback.
var ErrEmptyResult = errors.New("provider returned no results")

// NetworkError is a transport failure or timeout.
type NetworkError struct {
	Provider string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Provider, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPError is a non-2xx provider response that is not a quota signal.
type HTTPError struct {
	Provider string
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.Status, e.Body)
}

// QuotaExceededError is a provider rate or quota signal.
type QuotaExceededError struct {
	Provider string
	Status   int
	Reason   string
}

func (e *QuotaExceededError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: quota exceeded (HTTP %d)", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: quota exceeded (HTTP %d): %s", e.Provider, e.Status, e.Reason)
}

// ParseError is a payload shape mismatch.
type ParseError struct {
	Provider string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: unexpected payload: %v", e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ClassifyError maps err onto the provider error taxonomy. Unrecognized errors are
// treated as network failures so nothing escapes the four classes.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	if errors.Is(err, ErrEmptyResult) {
		return ErrorKindEmpty
	}
	var quotaErr *QuotaExceededError
	if errors.As(err, &quotaErr) {
		return ErrorKindQuota
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return ErrorKindHTTP
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return ErrorKindParse
	}
	return ErrorKindNetwork
}

// AsProviderError wraps any error that is not already part of the taxonomy into a
// NetworkError for provider.
func AsProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	switch ClassifyError(err) {
	case ErrorKindQuota, ErrorKindHTTP, ErrorKindParse, ErrorKindEmpty:
		return err
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return err
	}
	return &NetworkError{Provider: provider, Err: err}
}

// IsTimeout reports whether err is a deadline or net timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
