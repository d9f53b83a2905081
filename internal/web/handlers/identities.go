package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/sirupsen/logrus"
)

// IdentitiesHandler exposes the stored identities read-only.
type IdentitiesHandler struct {
	store database.IdentityReader
	log   *logrus.Entry
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(store database.IdentityReader, log *logrus.Entry) *IdentitiesHandler {
	return &IdentitiesHandler{store: store, log: log}
}

// IdentityResponse is one identity without its encoding.
type IdentityResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	CreatedAt string `json:"created_at"`
}

var listColumns = []database.Column{
	database.ColumnID,
	database.ColumnName,
	database.ColumnType,
	database.ColumnCreatedAt,
}

// List returns all identities in insertion order. ?name= filters by a
// case and diacritic insensitive substring.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.Read(r.Context(), listColumns...)
	if err != nil {
		h.log.WithError(err).Error("reading identities")
		respondError(w, http.StatusInternalServerError, "failed to read identities")
		return
	}

	query := r.URL.Query().Get("name")
	result := make([]IdentityResponse, 0, len(records))
	for _, rec := range records {
		if !facematch.NameContains(rec.Name, query) {
			continue
		}
		result = append(result, IdentityResponse{
			ID:        rec.ID,
			Name:      rec.Name,
			Type:      string(rec.Type),
			CreatedAt: rec.CreatedAt,
		})
	}

	respondJSON(w, http.StatusOK, result)
}
