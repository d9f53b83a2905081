package database

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func indexRecords() []IdentityRecord {
	return []IdentityRecord{
		{ID: 1, Name: "alice", Encoding: Encoding{0, 0}},
		{ID: 2, Name: "bob", Encoding: Encoding{3, 4}},
		{ID: 3, Name: "face_0", Encoding: Encoding{10, 10}},
	}
}

func TestIdentityIndex_Search(t *testing.T) {
	idx := NewIdentityIndex()
	if err := idx.Build(indexRecords()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if idx.Count() != 3 {
		t.Fatalf("expected 3 records, got %d", idx.Count())
	}

	neighbors, err := idx.Search(Encoding{3, 3}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(neighbors) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(neighbors))
	}
	if neighbors[0].Record.Name != "bob" {
		t.Errorf("expected bob first, got %s", neighbors[0].Record.Name)
	}
	if math.Abs(neighbors[0].Distance-1) > 1e-9 {
		t.Errorf("expected distance 1, got %v", neighbors[0].Distance)
	}
	if neighbors[1].Record.Name != "alice" {
		t.Errorf("expected alice second, got %s", neighbors[1].Record.Name)
	}
}

func TestIdentityIndex_Empty(t *testing.T) {
	idx := NewIdentityIndex()
	if err := idx.Build(nil); err != nil {
		t.Fatalf("Build: %v", err)
	}
	neighbors, err := idx.Search(Encoding{1, 1}, 5)
	if err != nil || len(neighbors) != 0 {
		t.Errorf("expected no neighbors, got %v, %v", neighbors, err)
	}
}

func TestIdentityIndex_Add(t *testing.T) {
	idx := NewIdentityIndex()
	if err := idx.Add(IdentityRecord{ID: 9, Name: "zoe", Encoding: Encoding{1, 1}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := idx.Add(IdentityRecord{ID: 10, Name: "empty"}); err == nil {
		t.Error("expected error for record without encoding")
	}
	neighbors, _ := idx.Search(Encoding{1, 1}, 1)
	if len(neighbors) != 1 || neighbors[0].Distance != 0 {
		t.Errorf("unexpected neighbors %v", neighbors)
	}
}

func TestIdentityIndex_SaveLoad(t *testing.T) {
	records := indexRecords()
	idx := NewIdentityIndex()
	if err := idx.Build(records); err != nil {
		t.Fatalf("Build: %v", err)
	}

	path := filepath.Join(t.TempDir(), "identities.hnsw")
	if err := idx.Save(path, MetadataFor(records)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, meta, err := LoadIdentityIndex(path)
	if err != nil {
		t.Fatalf("LoadIdentityIndex: %v", err)
	}
	if !meta.Fresh(records) {
		t.Errorf("expected metadata to be fresh: %+v", meta)
	}
	if meta.Fresh(records[:2]) {
		t.Error("expected metadata to be stale for fewer records")
	}

	neighbors, err := loaded.Search(Encoding{9, 9}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(neighbors) != 1 || neighbors[0].Record.Name != "face_0" {
		t.Errorf("unexpected neighbors after load: %v", neighbors)
	}
}

func TestLoadIdentityIndex_Missing(t *testing.T) {
	_, _, err := LoadIdentityIndex(filepath.Join(t.TempDir(), "missing.hnsw"))
	if !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}
