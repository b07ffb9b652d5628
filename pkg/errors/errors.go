// Package errors is the coded error type of the siting engine.  A code names
// the stage and, for fatal paths, the invariant that failed, so the command
// line can say "empty candidate set" and exit with the stage's status.
//
//	return errors.New(errors.ErrCodeSchemaMismatch, "bucket M_105+ not in catalog")
//	return errors.Wrap(err, errors.ErrCodeIORead, "reading population source")
package errors

import (
	"errors"
	"fmt"
)

// AppError carries a code, a message, optional detail (file names, unit
// IDs, bucket keys) and an optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Detail  string
	Cause   error
}

// Error renders "[CODE] message: detail: cause", omitting empty parts.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *AppError) Unwrap() error { return e.Cause }

// WithDetail returns a copy with Detail set; nil stays nil.
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	c := *e
	c.Detail = detail
	return &c
}

func (e *AppError) WithDetailf(format string, args ...interface{}) *AppError {
	return e.WithDetail(fmt.Sprintf(format, args...))
}

// WithCause returns a copy wrapping err; nil stays nil.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	c := *e
	c.Cause = err
	return &c
}

// Invariant names what the code guards, e.g. "schema mismatch".
func (e *AppError) Invariant() string {
	if e == nil {
		return ""
	}
	return DefaultMessageForCode(e.Code)
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap returns nil for a nil err.  ErrCodeUnknown keeps the code of the
// first AppError in err's chain.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == ErrCodeUnknown {
		code = GetCode(err)
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// IsCode reports whether any AppError in err's chain has code.
func IsCode(err error, code ErrorCode) bool {
	for ; err != nil; err = errors.Unwrap(err) {
		if ae, ok := err.(*AppError); ok && ae.Code == code {
			return true
		}
	}
	return false
}

// GetCode is the code of the first AppError in err's chain: CodeOK for nil,
// ErrCodeUnknown when there is none.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrCodeUnknown
}

func Is(err, target error) bool             { return errors.Is(err, target) }
func As(err error, target interface{}) bool { return errors.As(err, target) }
