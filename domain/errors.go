package domain

import (
	"errors"
	"fmt"
)

// Kind classifies domain errors so boundaries (HTTP handlers, job handlers)
// can map them without inspecting error text.
type Kind int

const (
	// KindUnknown is the zero Kind; errors that did not originate from this
	// package classify as unknown.
	KindUnknown Kind = iota
	// KindNotFound reports a missing entity or expired key.
	KindNotFound
	// KindValidation reports rejected input.
	KindValidation
	// KindInternal reports a failure inside the process, such as corrupt
	// stored state.
	KindInternal
	// KindExternal reports a failure of an external collaborator: broker,
	// LLM, embedding provider or vector store.
	KindExternal
	// KindTimeout reports an exceeded deadline.
	KindTimeout
)

// String returns the label used when rendering errors of this kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindValidation:
		return "validation error"
	case KindInternal:
		return "internal error"
	case KindExternal:
		return "external service error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown error"
	}
}

// Error is the domain error type. It carries a Kind, a message and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.Err }

// NotFoundf builds a KindNotFound error.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a KindValidation error.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Internalf builds a KindInternal error.
func Internalf(format string, args ...any) error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// Externalf builds a KindExternal error.
func Externalf(format string, args ...any) error {
	return &Error{Kind: KindExternal, Message: fmt.Sprintf(format, args...)}
}

// Timeoutf builds a KindTimeout error.
func Timeoutf(format string, args ...any) error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf(format, args...)}
}

// WrapExternal wraps an adapter-level failure as KindExternal.
func WrapExternal(msg string, err error) error {
	return &Error{Kind: KindExternal, Message: msg, Err: err}
}

// WrapInternal wraps a process-level failure as KindInternal.
func WrapInternal(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the Kind of err, or KindUnknown when err did not originate
// from this package.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
