// Package domainerrors provides coded domain errors. Services create these
// (or wrap store sentinels into them) and transport layers map codes onto
// protocol status without inspecting error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies a class of domain failure. Codes are stable API: transports
// and clients key off them, so renaming one is a breaking change.
type Code string

const (
	// CodeInvalidInput covers malformed or missing request fields.
	CodeInvalidInput Code = "invalid_input"
	// CodeUnsupportedModality is returned when no extractor is registered
	// for the requested modality.
	CodeUnsupportedModality Code = "unsupported_modality"
	// CodeInsufficientSignal means the raw payload was too weak to extract
	// a usable pattern from.
	CodeInsufficientSignal Code = "insufficient_signal"
	// CodeQualityTooLow means extraction succeeded but the quality estimate
	// fell below the floor. The caller must recapture; never auto-retried.
	CodeQualityTooLow Code = "quality_too_low"
	// CodeInvalidSignature is an authentication failure on a protocol step.
	// Always logged as a security event, never retried.
	CodeInvalidSignature Code = "invalid_signature"
	// CodeSessionExpired covers both consumed and timed-out capture tokens.
	// The caller restarts from capture.
	CodeSessionExpired Code = "session_expired"
	// CodeAlreadyRegistered means an active credential exists for the
	// (identity, modality) pair.
	CodeAlreadyRegistered Code = "already_registered"
	// CodeNotRegistered means no active credential exists to verify against.
	CodeNotRegistered Code = "not_registered"
	// CodeRateLimited is temporary; the caller backs off per the returned
	// retry window.
	CodeRateLimited Code = "rate_limited"
	// CodeMismatch means verification failed. The similarity value is never
	// disclosed alongside this code.
	CodeMismatch Code = "mismatch"
	// CodeInternal covers transient storage and infrastructure failures.
	CodeInternal Code = "internal"
)

// Error is a domain error with a stable code and optional detail fields.
type Error struct {
	Code    Code
	Message string
	Details map[string]string

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithDetail attaches a key/value pair for transports to surface (for
// example retry_after seconds on rate limit errors). Returns the receiver
// for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string, 1)
	}
	e.Details[key] = value
	return e
}

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an underlying error with a domain code. Returns nil when
// err is nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// CodeOf extracts the domain code from any error in the chain. Errors that
// carry no code report CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// DetailOf returns a detail value from the first domain error in the chain,
// or "" when absent.
func DetailOf(err error, key string) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Details[key]
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
