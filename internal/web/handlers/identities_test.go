package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/face-registry/internal/database"
	dbmock "github.com/kozaktomas/face-registry/internal/database/mock"
	"github.com/kozaktomas/face-registry/internal/logging"
)

func seededStore() *dbmock.MockEncodingStore {
	store := dbmock.NewMockEncodingStore(2)
	store.AddRecord(database.IdentityRecord{Name: "Jiří Novák", Encoding: database.Encoding{0.1, 0.2}, CreatedAt: "2026-01-02 10:00:00"})
	store.AddRecord(database.IdentityRecord{Name: "face_0", Encoding: database.Encoding{0.3, 0.4}, CreatedAt: "2026-01-02 10:01:00"})
	return store
}

func TestIdentitiesHandler_List(t *testing.T) {
	h := NewIdentitiesHandler(seededStore(), logging.Discard())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "encoding") {
		t.Error("response must not include encodings")
	}

	var got []IdentityResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d identities, want 2", len(got))
	}
	if got[0].ID != 1 || got[0].Type != string(database.TypeKnown) {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Name != "face_0" || got[1].Type != string(database.TypeUnknown) {
		t.Errorf("second = %+v", got[1])
	}
}

func TestIdentitiesHandler_ListFiltersByName(t *testing.T) {
	h := NewIdentitiesHandler(seededStore(), logging.Discard())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identities?name=novak", nil))

	var got []IdentityResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "Jiří Novák" {
		t.Errorf("got %+v", got)
	}
}

func TestIdentitiesHandler_ListEmpty(t *testing.T) {
	h := NewIdentitiesHandler(dbmock.NewMockEncodingStore(2), logging.Discard())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))

	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %q, want []", rec.Body.String())
	}
}

func TestIdentitiesHandler_ReadError(t *testing.T) {
	store := seededStore()
	store.ReadError = errors.New("connection refused")
	h := NewIdentitiesHandler(store, logging.Discard())

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Error("internal error details must not leak")
	}
}
