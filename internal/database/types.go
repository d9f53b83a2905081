package database

import (
	"fmt"
	"strings"
)

// FaceType classifies where an identity's name came from.
type FaceType string

const (
	// TypeKnown marks a name that came from a human-meaningful source (a renamed file).
	TypeKnown FaceType = "KNOWN"
	// TypeUnknown marks a synthesized placeholder name (face_<n>).
	TypeUnknown FaceType = "UNKNOWN"
)

// SynthesizedPrefix is the prefix of placeholder names given to unidentified captures.
const SynthesizedPrefix = "face_"

// Valid reports whether t is one of the two allowed values.
func (t FaceType) Valid() bool {
	return t == TypeKnown || t == TypeUnknown
}

// TypeForName derives the record type from a name.
func TypeForName(name string) FaceType {
	if strings.HasPrefix(name, SynthesizedPrefix) {
		return TypeUnknown
	}
	return TypeKnown
}

// IdentityRecord is one row of the identities table.
type IdentityRecord struct {
	ID        int64
	Name      string
	Type      FaceType
	Encoding  Encoding
	CreatedAt string
}

// Column names a projectable column of the identities table.
type Column string

const (
	ColumnID        Column = "id"
	ColumnName      Column = "name"
	ColumnType      Column = "type"
	ColumnEncoding  Column = "encoding"
	ColumnCreatedAt Column = "created_at"

	// ColumnAll selects every column.
	ColumnAll Column = "*"
)

// AllColumns lists the table columns in storage order.
var AllColumns = []Column{ColumnID, ColumnName, ColumnType, ColumnEncoding, ColumnCreatedAt}

// TableName is the identities table name shared by all backends.
const TableName = "identities"

// ResolveColumns validates a projection and expands "*" (or an empty list) to all columns.
// Duplicates are removed while keeping the first occurrence.
func ResolveColumns(columns []Column) ([]Column, error) {
	if len(columns) == 0 {
		return AllColumns, nil
	}
	seen := make(map[Column]bool, len(columns))
	out := make([]Column, 0, len(columns))
	for _, c := range columns {
		if c == ColumnAll {
			return AllColumns, nil
		}
		if !isColumn(c) {
			return nil, fmt.Errorf("unknown column %q", c)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

// ParseColumns converts user input such as "name, type" into columns.
func ParseColumns(s string) ([]Column, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AllColumns, nil
	}
	var cols []Column
	for part := range strings.SplitSeq(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		cols = append(cols, Column(part))
	}
	return ResolveColumns(cols)
}

// SelectList renders the columns as a SQL select list.
func SelectList(columns []Column) string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func isColumn(c Column) bool {
	for _, known := range AllColumns {
		if c == known {
			return true
		}
	}
	return false
}
