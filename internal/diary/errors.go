package diary

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrJournalMerged     = errors.New("journal already merged")
	ErrMergeInProgress   = errors.New("merge already in progress")
	ErrUnknownPreference = errors.New("unknown preference")
	ErrInvalidPreference = errors.New("invalid preference value")
	ErrJournalNotMerged  = errors.New("journal not merged")
	ErrEmptyMessage      = errors.New("message has no text or images")

	// ErrUpdateUnsupported is returned when the publisher cannot rewrite a
	// published document.
	ErrUpdateUnsupported = errors.New("publisher does not support updates")
)

// StorageError reports a failed read or write against the store. Callers
// should treat the whole logical operation as failed and retry it later.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// ExternalServiceError is a failed call to the external-document service.
// Every instance is retryable.
type ExternalServiceError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *ExternalServiceError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("external: %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("external: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("external: %s: %s", e.Op, e.Message)
	}
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
