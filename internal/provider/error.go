package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a provider failure for logging and usage
// accounting. Classification never changes dispatch behavior: any
// failure advances the chain to the next provider.
type ErrorKind string

const (
	ErrorTimeout ErrorKind = "TIMEOUT"
	ErrorQuota   ErrorKind = "QUOTA"
	ErrorAuth    ErrorKind = "AUTH"
	ErrorUnknown ErrorKind = "UNKNOWN"
)

// Error wraps a provider failure with its classification and origin.
type Error struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// classify maps an underlying error to an ErrorKind. Backends report
// failures as opaque strings, so quota and auth detection is
// best-effort substring matching; anything unrecognized is UNKNOWN.
func classify(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "429"):
		return ErrorQuota
	case strings.Contains(msg, "api key") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "unauthenticated") ||
		strings.Contains(msg, "permission denied") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "403"):
		return ErrorAuth
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return ErrorTimeout
	default:
		return ErrorUnknown
	}
}

// wrapError builds a classified *Error for a provider failure.
func wrapError(providerName string, err error) *Error {
	return &Error{
		Provider: providerName,
		Kind:     classify(err),
		Err:      err,
	}
}
