package core

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorKind is the small taxonomy every retry decision is derived from.
type ErrorKind int

const (
	KindTransient  ErrorKind = iota // network, 5xx/429, broker down, deadlock
	KindValidation                  // schema rejection, missing keys, bad input
	KindIntegrity                   // hash mismatch, broken lineage chain
	KindFatal                       // startup config errors
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	case KindIntegrity:
		return "integrity"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// DomainError carries an ErrorKind so the worker runtime can decide retry vs
// DLQ without string matching.
type DomainError struct {
	Kind ErrorKind
	Err  error
}

func (e *DomainError) Error() string { return e.Err.Error() }
func (e *DomainError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	return &DomainError{Kind: KindTransient, Err: err}
}

// Validation wraps err as non-retryable.
func Validation(err error) error {
	return &DomainError{Kind: KindValidation, Err: err}
}

// Integrity wraps err as an integrity failure (non-retryable, flagged).
func Integrity(err error) error {
	return &DomainError{Kind: KindIntegrity, Err: err}
}

// retryableFragments are matched case-insensitively against error text when
// no DomainError kind is attached. Mirrors the default classification table.
var retryableFragments = []string{
	"connection reset",
	"connection refused",
	"timeout",
	"timed out",
	"no such host",
	"temporary failure",
	"status 429",
	"status 5",
	"too many requests",
	"rate limit",
	"broker not connected",
	"deadlock",
	"serialization failure",
	"eof",
}

var nonRetryableFragments = []string{
	"validation",
	"schema",
	"not found",
	"permission denied",
	"missing required",
	"unsupported",
	"malformed",
}

// IsRetryable classifies an error for the retry policy. Tagged DomainErrors
// win; untagged errors fall back to network-error detection and message
// fragments.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind == KindTransient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, frag := range nonRetryableFragments {
		if strings.Contains(msg, frag) {
			return false
		}
	}
	for _, frag := range retryableFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
