package database

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
	"gonum.org/v1/gonum/floats"
)

// IndexMetadata stores metadata for validating cached identity indexes.
type IndexMetadata struct {
	Count     int64     `json:"count"`
	MaxID     int64     `json:"max_id"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"`
}

const indexMetadataVersion = 1

// MetadataFor describes the records an index was built from.
func MetadataFor(records []IdentityRecord) IndexMetadata {
	meta := IndexMetadata{Count: int64(len(records)), BuildTime: time.Now().UTC(), Version: indexMetadataVersion}
	for _, r := range records {
		meta.MaxID = max(meta.MaxID, r.ID)
	}
	return meta
}

// Fresh reports whether an index with this metadata still matches records.
func (m IndexMetadata) Fresh(records []IdentityRecord) bool {
	current := MetadataFor(records)
	return m.Version == indexMetadataVersion && m.Count == current.Count && m.MaxID == current.MaxID
}

// IdentityIndex is an in-memory HNSW graph over stored encodings using Euclidean
// distance. Backends without server-side vector search use it for nearest lookups.
type IdentityIndex struct {
	graph   *hnsw.Graph[int64]
	records map[int64]IdentityRecord
	mu      sync.RWMutex
}

// NewIdentityIndex creates an empty index.
func NewIdentityIndex() *IdentityIndex {
	return &IdentityIndex{records: make(map[int64]IdentityRecord)}
}

func newIdentityGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build replaces the index contents with records. Records need ID and Encoding.
func (h *IdentityIndex) Build(records []IdentityRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.records = make(map[int64]IdentityRecord, len(records))
	if len(records) == 0 {
		return nil
	}

	g := newIdentityGraph()
	for _, rec := range records {
		if len(rec.Encoding) == 0 {
			return fmt.Errorf("record %d has no encoding", rec.ID)
		}
		g.Add(hnsw.MakeNode(rec.ID, rec.Encoding.Float32()))
		h.records[rec.ID] = rec
	}
	h.graph = g
	return nil
}

// Add inserts a single record.
func (h *IdentityIndex) Add(rec IdentityRecord) error {
	if len(rec.Encoding) == 0 {
		return fmt.Errorf("record %d has no encoding", rec.ID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.graph == nil {
		h.graph = newIdentityGraph()
	}
	h.graph.Add(hnsw.MakeNode(rec.ID, rec.Encoding.Float32()))
	h.records[rec.ID] = rec
	return nil
}

// Count returns the number of indexed records.
func (h *IdentityIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Search returns up to k records nearest to query, closest first. Distances are
// recomputed exactly in float64 from the stored encodings.
func (h *IdentityIndex) Search(query Encoding, k int) ([]Neighbor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if k <= 0 || h.graph == nil || len(h.records) == 0 {
		return nil, nil
	}

	candidates := h.graph.Search(query.Float32(), k*HNSWSearchMultiplier)
	neighbors := make([]Neighbor, 0, len(candidates))
	for _, c := range candidates {
		rec, ok := h.records[c.Key]
		if !ok {
			continue
		}
		if len(rec.Encoding) != len(query) {
			return nil, &EncodingError{RecordID: rec.ID, Reason: fmt.Sprintf("expected %d values, got %d", len(query), len(rec.Encoding))}
		}
		neighbors = append(neighbors, Neighbor{Record: rec, Distance: floats.Distance(query, rec.Encoding, 2)})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Distance < neighbors[j].Distance
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// FindNearest implements NearestFinder.
func (h *IdentityIndex) FindNearest(_ context.Context, query Encoding, limit int) ([]Neighbor, error) {
	return h.Search(query, limit)
}

// Save persists the graph to path, with metadata in path.meta and the records in path.records.
func (h *IdentityIndex) Save(path string, metadata IndexMetadata) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		// Remove stale files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		_ = os.Remove(path + ".records")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := h.graph.Export(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing index file: %w", err)
	}

	metadata.Version = indexMetadataVersion
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}

	records := make([]IdentityRecord, 0, len(h.records))
	for _, rec := range h.records {
		records = append(records, rec)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(records); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	if err := os.WriteFile(path+".records", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write records file: %w", err)
	}
	return nil
}

// ErrIndexNotFound is returned by LoadIdentityIndex when no index was saved at path.
var ErrIndexNotFound = errors.New("index file not found")

// LoadIdentityIndex loads an index written by Save.
func LoadIdentityIndex(path string) (*IdentityIndex, IndexMetadata, error) {
	var metadata IndexMetadata

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, metadata, ErrIndexNotFound
	}

	metaData, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(metaData, &metadata); err != nil {
		return nil, metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return nil, metadata, fmt.Errorf("failed to load HNSW index: %w", err)
	}

	data, err := os.ReadFile(path + ".records") //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, metadata, fmt.Errorf("failed to read records file: %w", err)
	}
	var records []IdentityRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&records); err != nil {
		return nil, metadata, fmt.Errorf("failed to decode records: %w", err)
	}

	idx := &IdentityIndex{graph: saved.Graph, records: make(map[int64]IdentityRecord, len(records))}
	idx.graph.EfSearch = HNSWEfSearch
	for _, rec := range records {
		idx.records[rec.ID] = rec
	}
	return idx, metadata, nil
}
