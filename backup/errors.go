package backup

import (
	"errors"
	"fmt"
)

// Lookup and storage errors surfaced by the pipelines.
var (
	// ErrMetadataNotFound reports that a table's metadata file could not
	// be read from object storage.
	ErrMetadataNotFound = errors.New("table metadata not found")

	// ErrBackupNotFound reports a backup name with no recorded backups.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrPitNotFound reports a point-in-time id absent from a backup.
	ErrPitNotFound = errors.New("pit not found")

	// ErrDecodeFailed reports malformed manifest or metadata content.
	ErrDecodeFailed = errors.New("failed to decode file content")

	// ErrStorageFailed reports an exhausted object store operation.
	ErrStorageFailed = errors.New("object store operation failed")
)

// DecodeError reports malformed binary manifest or metadata content.
type DecodeError struct {
	Path  string
	Cause error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecodeFailed
}

// StorageError wraps an object store failure with key information, after
// retries are exhausted.
type StorageError struct {
	Operation string
	Bucket    string
	Key       string
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s on %s/%s: %v", e.Operation, e.Bucket, e.Key, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailed
}

// PartialCopyError reports that too many best-effort file copies failed.
type PartialCopyError struct {
	Failed    int
	Attempted int
	Samples   []string
}

// Error implements the error interface.
func (e *PartialCopyError) Error() string {
	return fmt.Sprintf("%d of %d file copies failed (e.g. %v)", e.Failed, e.Attempted, e.Samples)
}
