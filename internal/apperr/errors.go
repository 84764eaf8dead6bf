// Package apperr holds the error types shared by services and transports.
//
// Validation errors are raised before any remote call and never mutate state.
// Remote errors wrap a failed call to a collaborator (database, feed, auth).
// Not-found errors name the kind and id that could not be resolved.
package apperr

import (
	"errors"
	"fmt"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func Validation(msg string) error {
	return &ValidationError{msg: msg}
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Kind + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Remote wraps err unless it is nil or already classified.
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsClassified(err) {
		return err
	}
	return &RemoteError{Op: op, Err: err}
}

// IsClassified reports whether err already carries one of the typed errors.
func IsClassified(err error) bool {
	var vErr *ValidationError
	var nfErr *NotFoundError
	var rErr *RemoteError
	return errors.As(err, &vErr) || errors.As(err, &nfErr) || errors.As(err, &rErr)
}
