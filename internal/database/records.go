package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidRecord is returned by PrepareInsert for records that cannot be stored.
var ErrInvalidRecord = errors.New("invalid identity record")

// PrepareInsert validates a record before it is written and fills the defaults:
// the type is derived from the name when empty and created_at is stamped with now.
func PrepareInsert(rec IdentityRecord, dim int, now time.Time) (IdentityRecord, error) {
	if rec.Name == "" {
		return rec, fmt.Errorf("%w: empty name", ErrInvalidRecord)
	}
	if rec.Type == "" {
		rec.Type = TypeForName(rec.Name)
	}
	if !rec.Type.Valid() {
		return rec, fmt.Errorf("%w: type %q", ErrInvalidRecord, rec.Type)
	}
	if err := rec.Encoding.Validate(dim); err != nil {
		return rec, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = now.UTC().Format(time.RFC3339)
	}
	return rec, nil
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Scanner is satisfied by *sql.Rows and *sql.Row.
type Scanner interface {
	Scan(dest ...any) error
}

// QueryIdentities reads every identity in insertion order, projected to columns.
// The statement is plain SQL shared by all backends.
func QueryIdentities(ctx context.Context, q Querier, columns []Column, dim int) ([]IdentityRecord, error) {
	cols, err := ResolveColumns(columns)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY id", SelectList(cols), TableName)
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var records []IdentityRecord
	for rows.Next() {
		rec, err := ScanIdentity(rows, cols, dim)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return records, nil
}

// ScanIdentity scans one row laid out as columns. A stored encoding that does not
// parse to dim finite values yields an *EncodingError.
func ScanIdentity(s Scanner, columns []Column, dim int) (IdentityRecord, error) {
	var (
		rec     IdentityRecord
		typ     string
		encText string
	)
	dest := make([]any, len(columns))
	for i, c := range columns {
		switch c {
		case ColumnID:
			dest[i] = &rec.ID
		case ColumnName:
			dest[i] = &rec.Name
		case ColumnType:
			dest[i] = &typ
		case ColumnEncoding:
			dest[i] = &encText
		case ColumnCreatedAt:
			dest[i] = &rec.CreatedAt
		default:
			return rec, fmt.Errorf("unknown column %q", c)
		}
	}

	if err := s.Scan(dest...); err != nil {
		return rec, fmt.Errorf("scan identity: %w", err)
	}
	rec.Type = FaceType(typ)

	if slices.Contains(columns, ColumnEncoding) {
		enc, err := ParseEncoding(encText, dim)
		if err != nil {
			var encErr *EncodingError
			if errors.As(err, &encErr) {
				encErr.RecordID = rec.ID
			}
			return rec, err
		}
		rec.Encoding = enc
	}
	return rec, nil
}
