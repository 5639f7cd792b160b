package app

import (
	"errors"
	"fmt"
)

// Failure kinds. Every error returned by the flows in this package wraps
// exactly one of them.
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrValidation       = errors.New("validation error")
	ErrReadFailure      = errors.New("read failure")
	ErrUploadFailure    = errors.New("upload failure")
	ErrInsertFailure    = errors.New("insert failure")
	ErrNotFound         = errors.New("not found")
	ErrRemoteFunction   = errors.New("remote function failure")
)

// Storage level errors shared by the store implementations.
var (
	ErrObjectExists  = errors.New("object already exists")
	ErrAccountExists = errors.New("account already exists")
)

// Failure is a tagged, user-presentable error.
type Failure struct {
	Kind    error
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%v: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%v: %s: %v", f.Kind, f.Message, f.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

func NewFailure(kind error, message string, cause error) *Failure {
	return &Failure{Kind: kind, Message: message, Err: cause}
}

// Message returns the human readable part of err, falling back to its text.
func Message(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return err.Error()
}

// Kind returns the failure kind wrapped by err, or nil for untagged errors.
func Kind(err error) error {
	for _, k := range []error{
		ErrNotAuthenticated, ErrValidation, ErrReadFailure, ErrUploadFailure,
		ErrInsertFailure, ErrNotFound, ErrRemoteFunction,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
