package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of a provider failure.
type Kind string

const (
	// KindTransient covers timeouts, network errors, 5xx and malformed
	// payloads. The call yields no samples; the breaker stays closed.
	KindTransient Kind = "transient"
	// KindRateLimit covers explicit rate-limit signals and provider aborts.
	// It opens the provider's breaker.
	KindRateLimit Kind = "rate_limit"
	// KindEmpty means the provider answered but had nothing for the request.
	// It is not a failure.
	KindEmpty Kind = "empty"
)

// Error is a classified provider failure.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s error (status %d): %s", e.Provider, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s error: %s", e.Provider, e.Kind, msg)
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// RateLimited reports whether the error should open the breaker.
func (e *Error) RateLimited() bool { return e.Kind == KindRateLimit }

// NewTransient wraps a network or decode failure.
func NewTransient(provider string, cause error) *Error {
	return &Error{Kind: KindTransient, Provider: provider, Message: "request failed", Cause: cause}
}

// NewMalformed reports a payload that could not be interpreted.
func NewMalformed(provider, message string) *Error {
	return &Error{Kind: KindTransient, Provider: provider, Message: "malformed payload: " + message}
}

// NewRateLimit reports an explicit rate-limit signal.
func NewRateLimit(provider string, statusCode int) *Error {
	return &Error{Kind: KindRateLimit, Provider: provider, StatusCode: statusCode, Message: "rate limit exceeded"}
}

// NewEmpty reports a successful call that returned no rows.
func NewEmpty(provider, message string) *Error {
	return &Error{Kind: KindEmpty, Provider: provider, Message: message}
}

// ClassifyHTTP maps a non-2xx status to an Error. 429 and 403 (upstream
// abort after too many calls) are rate limits; everything else is transient.
func ClassifyHTTP(provider string, statusCode int) *Error {
	switch {
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusForbidden:
		return NewRateLimit(provider, statusCode)
	case statusCode >= 500:
		return &Error{Kind: KindTransient, Provider: provider, StatusCode: statusCode, Message: "server returned an error"}
	default:
		return &Error{Kind: KindTransient, Provider: provider, StatusCode: statusCode, Message: fmt.Sprintf("unexpected HTTP %d", statusCode)}
	}
}

// Classify converts an arbitrary call error into an Error. Context
// cancellation and deadlines are transient.
func Classify(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransient, Provider: provider, Message: "request timed out", Cause: err}
	}
	return NewTransient(provider, err)
}

// KindOf returns the kind of a provider error, or "" if err is not one.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// IsRateLimit reports whether err is a rate-limit provider error.
func IsRateLimit(err error) bool { return KindOf(err) == KindRateLimit }

// IsEmpty reports whether err is an empty-result signal.
func IsEmpty(err error) bool { return KindOf(err) == KindEmpty }
