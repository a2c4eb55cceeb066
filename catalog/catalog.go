// Package catalog talks to an Iceberg catalog: resolving a table to its
// current metadata location and registering restored tables.
package catalog

import (
	"context"
	"errors"
)

// Lookup errors.
var (
	// ErrTableNotFound reports that a table does not exist in the catalog.
	ErrTableNotFound = errors.New("table not found")

	// ErrNotIcebergTable reports a catalog entry with no metadata
	// location, which cannot be backed up.
	ErrNotIcebergTable = errors.New("table has no metadata location, not an Iceberg table")
)

// TableInfo is what the backup engine needs from a catalog entry.
type TableInfo struct {
	// Location is the table's root location in object storage.
	Location string

	// MetadataLocation is the current metadata.json location.
	MetadataLocation string
}

// Catalog is the minimal catalog contract: lookup and registration.
type Catalog interface {
	// GetTableInfo resolves a table to its location and current metadata
	// file. Returns ErrTableNotFound (wrapped) when the table does not
	// exist.
	GetTableInfo(ctx context.Context, database, table string) (*TableInfo, error)

	// RegisterTable registers an existing metadata file as a new table.
	RegisterTable(ctx context.Context, database, table, metadataLocation string) error
}
