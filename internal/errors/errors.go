// SPDX-License-Identifier: AGPL-3.0-only

// Package errors defines the error kinds surfaced by the task store, the
// reminder scheduler and the tool server.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an Error
type Kind string

// Error kinds
const (
	// KindValidation is a rejected input such as an empty task title
	KindValidation Kind = "validation"
	// KindPersistence is a failed read or write of the local store
	KindPersistence Kind = "persistence"
	// KindNotification is a refused or failed call to the notification service
	KindNotification Kind = "notification"
	// KindInvalidInput is a malformed request on the tool surface
	KindInvalidInput Kind = "invalid_input"
	// KindNotFound is an unknown resource
	KindNotFound Kind = "not_found"
	// KindInternal is anything else
	KindInternal Kind = "internal"
)

// Error is a classified error with an optional cause
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Message == "" {
			return e.Err.Error()
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation returns a validation error
func Validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

// Persistence wraps a storage failure during op
func Persistence(op string, err error) error {
	return &Error{Kind: KindPersistence, Message: op, Err: err}
}

// Notification wraps a notification service failure. err may be nil.
func Notification(message string, err error) error {
	return &Error{Kind: KindNotification, Message: message, Err: err}
}

// InvalidInput returns an invalid input error
func InvalidInput(message string) error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// NotFound returns a not found error for the given resource and id
func NotFound(resource, id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

// Internal wraps an unexpected error
func Internal(err error) error {
	return &Error{Kind: KindInternal, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsValidation reports whether err is a validation error
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsPersistence reports whether err is a persistence error
func IsPersistence(err error) bool { return KindOf(err) == KindPersistence }

// IsNotification reports whether err is a notification error
func IsNotification(err error) bool { return KindOf(err) == KindNotification }

// IsNotFound reports whether err is a not found error
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// Is and As re-export the standard library helpers so callers importing this
// package under the name errors keep them.
var (
	Is  = stderrors.Is
	As  = stderrors.As
	New = stderrors.New
)
