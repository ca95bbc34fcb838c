package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy for the relay core. Callers branch on these instead of
// string matching.

var (
	// ErrDuplicate signals a uniqueness conflict; callers treat it as a
	// silent skip, not a failure.
	ErrDuplicate = errors.New("duplicate entry")

	// ErrInvalidInput signals malformed or missing required fields.
	// Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound signals a lookup miss.
	ErrNotFound = errors.New("not found")
)

// StorageError wraps a failure of the underlying store. The queue engine
// propagates these out unchanged; it never retries storage operations.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err as a StorageError for the given operation.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is (or wraps) a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// PermanentError marks a dispatch failure that must not be retried, such
// as a 4xx semantic rejection by the chat target.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is classified as non-retryable.
// Anything not explicitly permanent counts as transient.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
