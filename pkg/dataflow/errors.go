package dataflow

import (
	"errors"
	"fmt"
	"log/slog"
)

// Kind classifies pipeline errors.
//
// Per-sample failures (IO, Type, non-strict Coverage) are recovered inside
// stream stages by dropping the sample. Shape and Range errors surface
// synchronously to the caller. StreamAborted marks a stream that failed
// unrecoverably; every subsequent Next returns it. InvalidArgument is
// recorded at operator construction and never delayed past Err().
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindCoverage
	KindShape
	KindRange
	KindType
	KindIO
	KindStreamAborted
	KindInvalidArgument
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCoverage:
		return "coverage"
	case KindShape:
		return "shape"
	case KindRange:
		return "range"
	case KindType:
		return "type"
	case KindIO:
		return "io"
	case KindStreamAborted:
		return "stream-aborted"
	case KindInvalidArgument:
		return "invalid-argument"
	default:
		return "unknown"
	}
}

// Error is the library's error type. It carries a Kind for programmatic
// handling and optional slog attributes for structured logging.
//
// It supports the standard wrapping protocol (errors.Is, errors.As,
// errors.Unwrap).
//
// Example:
//
//	return dataflow.NewErr(dataflow.KindShape, "batch shape mismatch").
//		Tag(slog.String("key", key))
type Error struct {
	kind  Kind
	msg   string
	cause error
	attrs []slog.Attr
}

// NewErr creates a new error of the given kind.
func NewErr(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Errorf creates a new error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// WrapErr wraps an existing error with a kind and message.
//
// Example:
//
//	if err != nil {
//	    return dataflow.WrapErr(dataflow.KindIO, err, "reading tar member")
//	}
func WrapErr(kind Kind, err error, msg string) *Error {
	return &Error{kind: kind, msg: msg, cause: err}
}

// Tag adds a slog attribute to the error for structured logging.
// Returns the error for fluent chaining.
func (e *Error) Tag(attr slog.Attr) *Error {
	e.attrs = append(e.attrs, attr)
	return e
}

// Tags adds multiple slog attributes to the error.
func (e *Error) Tags(attrs ...slog.Attr) *Error {
	e.attrs = append(e.attrs, attrs...)
	return e
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Message returns the message without kind prefix or cause.
func (e *Error) Message() string { return e.msg }

// Attrs returns the slog attributes attached to the error.
func (e *Error) Attrs() []slog.Attr { return e.attrs }

// LogAttrs returns the attributes plus the kind and cause, ready to pass to
// the logging helpers.
func (e *Error) LogAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(e.attrs)+2)
	attrs = append(attrs, slog.String("kind", e.kind.String()))
	if e.cause != nil {
		attrs = append(attrs, slog.Any("cause", e.cause))
	}
	return append(attrs, e.attrs...)
}

// Is reports kind equality, so errors.Is(err, dataflow.NewErr(kind, ""))
// matches any error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind && (t.msg == "" || t.msg == e.msg)
}

// KindOf extracts the Kind from an error chain, or KindUnknown when the
// chain holds no *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// IsKind reports whether the error chain contains an *Error of the kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
