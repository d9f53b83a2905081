package database

import (
	"context"
	"errors"
)

// ErrDuplicateName is logged when an insert collides with an existing name.
var ErrDuplicateName = errors.New("identity name already exists")

// IdentityReader provides read-only access to identity records
type IdentityReader interface {
	// Read returns all records in insertion order projected to columns.
	// No columns (or ColumnAll) selects everything.
	Read(ctx context.Context, columns ...Column) ([]IdentityRecord, error)
}

// EncodingStore persists identity records.
type EncodingStore interface {
	IdentityReader

	// Insert persists one record and reports whether it was committed.
	// Failures, including a name collision, are logged by the store and never returned.
	Insert(ctx context.Context, rec IdentityRecord) bool

	// DeleteAll removes every record. Administrative use only.
	DeleteAll(ctx context.Context) error
}

// Admin is implemented by backends that manage their own schema.
type Admin interface {
	EncodingStore

	// Migrate creates the identities table if it does not exist.
	Migrate(ctx context.Context) error
	// DropSchema drops the identities table.
	DropSchema(ctx context.Context) error
	// Tables lists the user tables present in the database.
	Tables(ctx context.Context) ([]string, error)
	// Close releases the connection.
	Close() error
}

// Neighbor is a stored identity returned by a nearest lookup.
type Neighbor struct {
	Record   IdentityRecord
	Distance float64
}

// NearestFinder is implemented by backends that can search by vector server-side.
type NearestFinder interface {
	FindNearest(ctx context.Context, query Encoding, limit int) ([]Neighbor, error)
}

// Destroyer is implemented by backends that own their database outright
// (a sqlite file) and can remove it entirely. The store is closed afterwards.
type Destroyer interface {
	Destroy(ctx context.Context) error
}

// HasIdentitiesTable reports whether tables contains the identities table.
func HasIdentitiesTable(tables []string) bool {
	for _, t := range tables {
		if t == TableName {
			return true
		}
	}
	return false
}
