// Package apperr is the error taxonomy shared by the saga components.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindExhausted
	KindUpstream
	KindNotFound
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "state_conflict"
	case KindExhausted:
		return "resource_exhausted"
	case KindUpstream:
		return "upstream_failure"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

type Error struct {
	Kind      Kind
	Op        string
	Msg       string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var k interface{ ErrorKind() Kind }
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindInternal
}

func (e *Error) ErrorKind() Kind { return e.Kind }

func Is(err error, k Kind) bool { return err != nil && KindOf(err) == k }

func IsRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

func (e *Error) IsRetryable() bool { return e.Retryable }

func New(k Kind, op, format string, args ...any) *Error {
	return &Error{Kind: k, Op: op, Msg: fmt.Sprintf(format, args...), Retryable: k == KindConflict || k == KindUpstream}
}

func Wrap(k Kind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err, Retryable: k == KindConflict || k == KindUpstream}
}

func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, format, args...)
}

func NotFound(op, format string, args ...any) *Error {
	return New(KindNotFound, op, format, args...)
}

func Unauthorized(op, format string, args ...any) *Error {
	return New(KindUnauthorized, op, format, args...)
}

func Conflict(op, format string, args ...any) *Error {
	return New(KindConflict, op, format, args...)
}

func Exhausted(op, format string, args ...any) *Error {
	return New(KindExhausted, op, format, args...)
}

func Upstream(op string, err error) *Error {
	return Wrap(KindUpstream, op, err)
}
