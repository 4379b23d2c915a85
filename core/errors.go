package core

import (
	"errors"
	"fmt"
)

// ValidationError reports bad or missing user input. It is always
// returned before any network call is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// AuthError reports a challenge, signature or session failure.
// Recoverable by re-authenticating.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return "auth: " + e.Reason + ": " + e.Err.Error()
	}
	return "auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// Authf builds an AuthError wrapping cause, which may be nil.
func Authf(cause error, format string, args ...any) *AuthError {
	return &AuthError{Reason: fmt.Sprintf(format, args...), Err: cause}
}

// TransferError reports a failure signing, broadcasting or executing
// an attached crypto transfer.
type TransferError struct {
	Reason string
	Err    error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return "transfer: " + e.Reason + ": " + e.Err.Error()
	}
	return "transfer: " + e.Reason
}

func (e *TransferError) Unwrap() error { return e.Err }

// BackendError reports a generic non-success response from a remote
// backend. Status is the HTTP status code when one is available.
type BackendError struct {
	Status int
	Reason string
	Err    error
}

func (e *BackendError) Error() string {
	msg := "backend: " + e.Reason
	if e.Status != 0 {
		msg = fmt.Sprintf("backend: %s (status %d)", e.Reason, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BackendError) Unwrap() error { return e.Err }

var (
	// ErrNoSession is returned when no persisted or live session exists.
	ErrNoSession = errors.New("no active session")

	// ErrUnknownFlow is returned when an OTP verification references a
	// flow that was discarded or never started.
	ErrUnknownFlow = &ValidationError{Reason: "unknown or expired flow"}

	// ErrSendInFlight is returned when a send is attempted while a
	// previous one on the same pipeline has not finished.
	ErrSendInFlight = &ValidationError{Reason: "send already in progress"}
)

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTransfer reports whether err is a TransferError.
func IsTransfer(err error) bool {
	var te *TransferError
	return errors.As(err, &te)
}

// IsBackend reports whether err is a BackendError.
func IsBackend(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
