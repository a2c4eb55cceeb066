package icevault

import (
	"errors"
	"fmt"

	"github.com/openlake/icevault/backup"
	"github.com/openlake/icevault/catalog"
	"github.com/openlake/icevault/deletefile"
)

// Common errors for backup and restore operations, re-exported from the
// packages that produce them so callers can match with errors.Is against
// this package alone.
var (
	// Lookup errors
	ErrTableNotFound    = catalog.ErrTableNotFound
	ErrMetadataNotFound = backup.ErrMetadataNotFound
	ErrBackupNotFound   = backup.ErrBackupNotFound
	ErrPitNotFound      = backup.ErrPitNotFound

	// Format errors
	ErrNotIcebergTable = catalog.ErrNotIcebergTable
	ErrDecodeFailed    = backup.ErrDecodeFailed
	ErrRewriteFailed   = deletefile.ErrRewriteFailed

	// Storage errors
	ErrStorageFailed = backup.ErrStorageFailed

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Typed errors carrying context about what failed.
type (
	// DecodeError reports malformed binary manifest or metadata content.
	DecodeError = backup.DecodeError

	// RewriteError reports a failed rewrite of a position-delete file.
	RewriteError = deletefile.RewriteError

	// StorageError wraps an object store failure with key information.
	StorageError = backup.StorageError

	// PartialCopyError reports that too many best-effort file copies
	// failed during backup.
	PartialCopyError = backup.PartialCopyError
)

// ValidationError reports a malformed identifier, rejected before any I/O.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}
