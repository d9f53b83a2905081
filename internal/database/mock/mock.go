// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/face-registry/internal/database"
)

// MockEncodingStore is an in-memory database.EncodingStore with the same
// uniqueness and validation rules as the SQL backends.
type MockEncodingStore struct {
	mu      sync.RWMutex
	records []database.IdentityRecord
	nextID  int64
	dim     int

	// Error injection
	ReadError      error
	DeleteAllError error
	// FailInsert makes Insert report false for the listed names.
	FailInsert map[string]bool
	// FailReadAfter makes Read fail once it has been called this many times (0 disables).
	FailReadAfter int

	// Call counters
	InsertCalls int
	ReadCalls   int
}

// NewMockEncodingStore creates an empty store for encodings of dimension dim.
func NewMockEncodingStore(dim int) *MockEncodingStore {
	return &MockEncodingStore{dim: dim, nextID: 1, FailInsert: make(map[string]bool)}
}

// AddRecord seeds the store, bypassing validation so tests can plant bad data.
func (m *MockEncodingStore) AddRecord(rec database.IdentityRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.nextID
	m.nextID++
	if rec.Type == "" {
		rec.Type = database.TypeForName(rec.Name)
	}
	m.records = append(m.records, rec)
}

// Insert stores a record unless it is invalid, its name exists, or it is listed in FailInsert.
func (m *MockEncodingStore) Insert(_ context.Context, rec database.IdentityRecord) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertCalls++

	if m.FailInsert[rec.Name] {
		return false
	}
	rec, err := database.PrepareInsert(rec, m.dim, time.Now())
	if err != nil {
		return false
	}
	for _, existing := range m.records {
		if existing.Name == rec.Name {
			return false
		}
	}
	rec.ID = m.nextID
	m.nextID++
	rec.Encoding = append(database.Encoding(nil), rec.Encoding...)
	m.records = append(m.records, rec)
	return true
}

// Read returns copies of the stored records projected to columns.
func (m *MockEncodingStore) Read(_ context.Context, columns ...database.Column) ([]database.IdentityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadCalls++

	if m.ReadError != nil {
		return nil, m.ReadError
	}
	if m.FailReadAfter > 0 && m.ReadCalls > m.FailReadAfter {
		return nil, fmt.Errorf("mock read %d: store unavailable", m.ReadCalls)
	}

	cols, err := database.ResolveColumns(columns)
	if err != nil {
		return nil, err
	}

	out := make([]database.IdentityRecord, 0, len(m.records))
	for _, rec := range m.records {
		var p database.IdentityRecord
		for _, c := range cols {
			switch c {
			case database.ColumnID:
				p.ID = rec.ID
			case database.ColumnName:
				p.Name = rec.Name
			case database.ColumnType:
				p.Type = rec.Type
			case database.ColumnEncoding:
				if err := rec.Encoding.Validate(m.dim); err != nil {
					var encErr *database.EncodingError
					if errors.As(err, &encErr) {
						encErr.RecordID = rec.ID
					}
					return nil, err
				}
				p.Encoding = append(database.Encoding(nil), rec.Encoding...)
			case database.ColumnCreatedAt:
				p.CreatedAt = rec.CreatedAt
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// DeleteAll removes every record.
func (m *MockEncodingStore) DeleteAll(_ context.Context) error {
	if m.DeleteAllError != nil {
		return m.DeleteAllError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}

// Names returns the stored names in insertion order.
func (m *MockEncodingStore) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.records))
	for i, r := range m.records {
		names[i] = r.Name
	}
	return names
}

// Count returns the number of stored records.
func (m *MockEncodingStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
