package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueEmpty is a skip condition, not a failure.
	ErrQueueEmpty = errors.New("queue is empty")
	ErrNotFound   = errors.New("not found")
	ErrStorage    = errors.New("storage unavailable")
	ErrDuplicate  = errors.New("already exists")
	// ErrPublishInFlight is returned by a tick that found another publish running.
	ErrPublishInFlight = errors.New("publish already in flight")
	ErrEmptyPost       = errors.New("post must contain at least some text")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNothingToDigest = errors.New("no new link posts since the last digest")
)

// StorageError marks a persistence failure so callers can match ErrStorage.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// TargetError is a failure of one platform, folded into an Outcome by the adapter.
type TargetError struct {
	Target Target
	Err    error
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("%s: %v", e.Target, e.Err)
}

func (e *TargetError) Unwrap() error {
	return e.Err
}
