package service

import (
	"context"
	"errors"
	"net"

	"tiger-life/internal/store"
)

// Kind classifies failures for the caller
type Kind string

const (
	// KindValidation is raised before any backend call
	KindValidation Kind = "validation"
	// KindPermission means a capability check failed
	KindPermission Kind = "permission_denied"
	// KindNotFound means no matching row exists
	KindNotFound Kind = "not_found"
	// KindBackend means a collaborator answered with an error
	KindBackend Kind = "backend"
	// KindNetwork means a request could not complete
	KindNetwork Kind = "network"
)

// Error carries a user-facing message and the underlying cause
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, treating unclassified errors as backend failures
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindBackend
}

// IsKind reports whether err is classified as k
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// Message returns the user-facing text for err
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Something went wrong"
}

func validationError(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func permissionError(msg string) error {
	return &Error{Kind: KindPermission, Message: msg}
}

func notFoundError(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// backendError classifies an error returned by the store or a collaborator
func backendError(msg string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: msg, Err: err}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.As(err, &netErr):
		return &Error{Kind: KindNetwork, Message: msg, Err: err}
	default:
		return &Error{Kind: KindBackend, Message: msg, Err: err}
	}
}

// lookupError reports a missing row as notFound and any other store failure
// as failed
func lookupError(notFound, failed string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &Error{Kind: KindNotFound, Message: notFound, Err: err}
	}
	return backendError(failed, err)
}
