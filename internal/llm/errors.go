package llm

import (
	"errors"
	"fmt"
	"time"
)

// Reason categorizes a failed invocation.
type Reason string

const (
	ReasonRateLimited     Reason = "rate_limited"
	ReasonInvalidResponse Reason = "invalid_response"
	ReasonTransportError  Reason = "transport_error"
)

var (
	// ErrRateLimited marks backend errors caused by rate limiting or exhausted quota.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransient marks backend errors worth retrying: network failures,
	// timeouts and server side errors.
	ErrTransient = errors.New("transient backend failure")
	// ErrMissingKeys is returned when a parsed object lacks a required key.
	ErrMissingKeys = errors.New("response is missing required keys")
)

// RateLimitError is returned by backends when the provider asked the client to
// slow down. RetryAfter is zero when the provider gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	msg := "rate limited"
	if e.RetryAfter > 0 {
		msg = fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *RateLimitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRateLimited}
	}
	return []error{ErrRateLimited, e.Err}
}

// Transient wraps err so that the invoker retries it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Error is the failure returned by Invoker.Invoke once an invocation cannot
// produce a usable value. Raw holds the last text received from the backend.
type Error struct {
	Reason   Reason
	Raw      string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm invocation failed after %d attempt(s): %s: %v", e.Attempts, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf returns the failure reason carried by err, or an empty Reason when
// err did not come from an invocation.
func ReasonOf(err error) Reason {
	var invErr *Error
	if errors.As(err, &invErr) {
		return invErr.Reason
	}
	return ""
}

func classify(err error) Reason {
	if errors.Is(err, ErrRateLimited) {
		return ReasonRateLimited
	}
	return ReasonTransportError
}

func retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
