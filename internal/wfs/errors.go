package wfs

import (
	"errors"
	"fmt"
)

var (
	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("storage error")

	// ErrNotFound is returned when a requested version does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidJob is returned by Enqueue for jobs missing a kind or document.
	ErrInvalidJob = errors.New("invalid sync job")
)

// StorageError reports a failed read, write or encode against the KV substrate.
type StorageError struct {
	Op  string // "get", "set", "remove", "encode" or "decode"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// ProcessorError wraps a failure returned (or panicked) by the remote processor.
// It is never returned from Drain; it travels inside QueueRetry events.
type ProcessorError struct {
	JobID string
	Err   error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("processing job %s: %v", e.JobID, e.Err)
}

func (e *ProcessorError) Unwrap() error { return e.Err }
