package domain

import (
	"errors"
	"fmt"
)

// StoreUnavailableError means local persistence itself is broken: the
// database cannot be opened or the queue cannot be read or written at all.
// It is fatal to the feature and must surface to the user rather than
// silently degrading.
type StoreUnavailableError struct {
	Path string
	Err  error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("local store unavailable (%s): %v", e.Path, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// NewStoreUnavailable wraps err as a StoreUnavailableError.
func NewStoreUnavailable(path string, err error) error {
	return &StoreUnavailableError{Path: path, Err: err}
}

// IsStoreUnavailable reports whether err is a StoreUnavailableError.
// Uses errors.As to handle wrapped errors.
func IsStoreUnavailable(err error) bool {
	var se *StoreUnavailableError
	return errors.As(err, &se)
}

// ValidationError means a record is structurally incomplete and can never
// succeed remotely. Raised fail-fast at enqueue time and re-checked at sync
// time; never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid record: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid record: %s", e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RemoteClass categorizes failures from the remote service adapter.
type RemoteClass string

const (
	// RemoteNetwork is a transport-level failure: the request never got a
	// response. Transient; the item stays queued.
	RemoteNetwork RemoteClass = "network"

	// RemoteServer is a 5xx response. Transient; the item stays queued.
	RemoteServer RemoteClass = "server"

	// RemoteValidation is a 4xx response saying the server understood the
	// request and found the payload invalid.
	RemoteValidation RemoteClass = "validation"

	// RemoteConflict is a rejection on a uniqueness rule, e.g. the same
	// scanned code was already registered by another device.
	RemoteConflict RemoteClass = "conflict"
)

// RemoteError is a classified failure from the remote service.
type RemoteError struct {
	Class   RemoteClass
	Status  int // HTTP status, 0 for transport failures
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s (status %d): %s", e.Class, e.Status, e.Message)
	}
	return fmt.Sprintf("remote %s: %s", e.Class, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying on a later run.
func (e *RemoteError) Transient() bool {
	return e.Class == RemoteNetwork || e.Class == RemoteServer
}

// RemoteClassOf returns the class of a wrapped RemoteError, or "" if err is
// not one.
func RemoteClassOf(err error) RemoteClass {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Class
	}
	return ""
}
