package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/embedding"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Providers   []ProviderInfo `json:"providers"`
	Backend     string         `json:"database_backend"`
	Backends    []string       `json:"database_backends"`
	Embedder    string         `json:"embedder"`
	Embedders   []string       `json:"embedders"`
	Tolerance   float64        `json:"tolerance"`
	EncodingDim int            `json:"encoding_dim"`
}

// ProviderInfo represents information about an OCR provider
type ProviderInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Get returns the available configuration
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	providers := []ProviderInfo{
		{
			Name:      "openai",
			Available: h.config.OpenAI.Token != "",
		},
		{
			Name:      "gemini",
			Available: h.config.Gemini.APIKey != "",
		},
	}

	backend := h.config.Database.Backend
	if backend == "" {
		backend = database.BackendSQLite
	}

	response := ConfigResponse{
		Providers:   providers,
		Backend:     backend,
		Backends:    database.Backends(),
		Embedder:    h.config.Embedding.Backend,
		Embedders:   embedding.Kinds(),
		Tolerance:   h.config.Matching.Tolerance,
		EncodingDim: h.config.Matching.EncodingDim,
	}

	respondJSON(w, http.StatusOK, response)
}
