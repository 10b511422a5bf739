package common

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the API and CLI boundaries. Kinds map
// onto HTTP status classes and CLI exit behaviour.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUnauthenticated
	KindForbidden
	KindConflict
	KindRemote
)

// Error is the classified error type carried across package
// boundaries. Err is optional and preserved for unwrapping.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validationf reports invalid caller input. No side effects may have
// occurred when it is returned.
func Validationf(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf reports a missing entity.
func NotFoundf(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Unauthenticated reports a missing credential.
func Unauthenticated(msg string) error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

// Forbidden reports a present but non-matching credential.
func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// Conflictf reports duplicate names or concurrent operations.
func Conflictf(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Remotef wraps a remote-host failure.
func Remotef(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindRemote, Message: fmt.Sprintf(format, args...), Err: err}
}

// Internalf wraps an unexpected internal failure.
func Internalf(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err, or KindInternal when err carries
// no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
