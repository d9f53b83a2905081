package facematch

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
)

// Snapshot is the set of known identities a matcher compares against.
// Names[i] belongs to Encodings[i]. A snapshot owns its slices, so later store
// writes never change it; callers replace it by loading a new one.
type Snapshot struct {
	Names     []string
	Encodings []database.Encoding
}

// LoadSnapshot reads names and encodings from the store. A corrupt stored
// encoding fails the load.
func LoadSnapshot(ctx context.Context, r database.IdentityReader) (Snapshot, error) {
	records, err := r.Read(ctx, database.ColumnName, database.ColumnEncoding)
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading known encodings: %w", err)
	}

	snap := Snapshot{
		Names:     make([]string, len(records)),
		Encodings: make([]database.Encoding, len(records)),
	}
	for i, rec := range records {
		snap.Names[i] = rec.Name
		snap.Encodings[i] = rec.Encoding
	}
	return snap, nil
}

// Len returns the number of known identities.
func (s Snapshot) Len() int {
	return len(s.Names)
}

// Match matches query against the snapshot. The returned name is set only on a match.
func (s Snapshot) Match(query database.Encoding, tolerance float64) (Result, string, error) {
	res, err := Match(query, s.Encodings, tolerance)
	if err != nil {
		return res, "", err
	}
	if res.Matched() {
		return res, s.Names[res.BestIndex], nil
	}
	return res, "", nil
}
