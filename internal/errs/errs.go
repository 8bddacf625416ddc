// Package errs defines the typed errors raised by the extraction pipeline.
// Every error carries an explicit Retryable flag so callers can apply
// their own retry policy.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies where an error originated.
type Kind string

const (
	KindConfig     Kind = "config"
	KindFetch      Kind = "fetch"
	KindLLM        Kind = "llm"
	KindParse      Kind = "parse"
	KindProcessing Kind = "processing"
	KindValidation Kind = "validation"
	KindICS        Kind = "ics"
)

// Error is the typed error returned across package boundaries.
type Error struct {
	Kind       Kind
	Op         string // operation that failed, e.g. "fetch", "llm.complete"
	Retryable  bool
	StatusCode int // HTTP status when known
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config returns a non-retryable configuration error.
func Config(op string, format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Op: op, Err: fmt.Errorf(format, args...)}
}

// Fetch returns a fetch error. Retryability follows the status code:
// 5xx is retryable, anything else below 500 is not. A zero status means
// a transport failure and uses the retryable argument.
func Fetch(op string, status int, retryable bool, err error) *Error {
	if status >= 500 {
		retryable = true
	} else if status >= 400 {
		retryable = false
	}
	return &Error{Kind: KindFetch, Op: op, StatusCode: status, Retryable: retryable, Err: err}
}

// LLM returns a model API error. 429 and 5xx are retryable; other API
// statuses are not. A zero status uses the retryable argument.
func LLM(op string, status int, retryable bool, err error) *Error {
	if status == 429 || status >= 500 {
		retryable = true
	} else if status != 0 {
		retryable = false
	}
	return &Error{Kind: KindLLM, Op: op, StatusCode: status, Retryable: retryable, Err: err}
}

// Parse returns a non-retryable parsing error.
func Parse(op string, err error) *Error {
	return &Error{Kind: KindParse, Op: op, Err: err}
}

// Processing returns a non-retryable content processing error.
func Processing(op string, err error) *Error {
	return &Error{Kind: KindProcessing, Op: op, Err: err}
}

// Validation returns a non-retryable validation error.
func Validation(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// ICS returns a non-retryable calendar generation error.
func ICS(op string, err error) *Error {
	return &Error{Kind: KindICS, Op: op, Err: err}
}

// IsRetryable reports whether err, or any error it wraps, is a retryable *Error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
