package config

import (
	"os"
	"testing"
)

func TestDefaults_Embedded(t *testing.T) {
	cfg := Defaults()

	if cfg.Matching.Tolerance != 0.6 {
		t.Errorf("expected default tolerance 0.6, got %v", cfg.Matching.Tolerance)
	}
	if cfg.Matching.EncodingDim != 128 {
		t.Errorf("expected default encoding dim 128, got %d", cfg.Matching.EncodingDim)
	}
	if cfg.Database.EncodingDim != cfg.Matching.EncodingDim {
		t.Errorf("database encoding dim %d not copied from matching %d", cfg.Database.EncodingDim, cfg.Matching.EncodingDim)
	}
	if cfg.Database.Backend != "sqlite" {
		t.Errorf("expected default backend sqlite, got '%s'", cfg.Database.Backend)
	}
	if cfg.Web.ImagesPerPage != 5 {
		t.Errorf("expected 5 images per page, got %d", cfg.Web.ImagesPerPage)
	}
}

func TestLoad_DefaultTolerance(t *testing.T) {
	os.Unsetenv("FACE_TOLERANCE")

	cfg := Load()

	if cfg.Matching.Tolerance != 0.6 {
		t.Errorf("expected default tolerance 0.6, got %v", cfg.Matching.Tolerance)
	}
}

func TestLoad_CustomTolerance(t *testing.T) {
	t.Setenv("FACE_TOLERANCE", "0.45")

	cfg := Load()

	if cfg.Matching.Tolerance != 0.45 {
		t.Errorf("expected tolerance 0.45, got %v", cfg.Matching.Tolerance)
	}
}

func TestLoad_InvalidTolerance(t *testing.T) {
	tests := []string{"abc", "-1", "0"}

	for _, value := range tests {
		t.Run(value, func(t *testing.T) {
			t.Setenv("FACE_TOLERANCE", value)

			cfg := Load()

			if cfg.Matching.Tolerance != 0.6 {
				t.Errorf("expected fallback tolerance 0.6 for %q, got %v", value, cfg.Matching.Tolerance)
			}
		})
	}
}

func TestLoad_CustomEncodingDim(t *testing.T) {
	t.Setenv("FACE_ENCODING_DIM", "512")

	cfg := Load()

	if cfg.Matching.EncodingDim != 512 {
		t.Errorf("expected encoding dim 512, got %d", cfg.Matching.EncodingDim)
	}
	if cfg.Database.EncodingDim != 512 {
		t.Errorf("expected database encoding dim 512, got %d", cfg.Database.EncodingDim)
	}
}

func TestLoad_ZeroEncodingDim(t *testing.T) {
	t.Setenv("FACE_ENCODING_DIM", "0")

	cfg := Load()

	if cfg.Matching.EncodingDim != 128 {
		t.Errorf("expected default encoding dim 128 for zero input, got %d", cfg.Matching.EncodingDim)
	}
}

func TestLoad_CameraDeviceZeroAllowed(t *testing.T) {
	t.Setenv("FACE_CAMERA_DEVICE", "0")

	cfg := Load()

	if cfg.Camera.Device != 0 {
		t.Errorf("expected camera device 0, got %d", cfg.Camera.Device)
	}
}

func TestLoad_DatabaseConfig(t *testing.T) {
	t.Setenv("FACE_DB_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/faces")
	t.Setenv("FACE_DB_PATH", "/tmp/faces.db")

	cfg := Load()

	if cfg.Database.Backend != "postgres" {
		t.Errorf("expected backend to be lowercased to 'postgres', got '%s'", cfg.Database.Backend)
	}
	if cfg.Database.URL != "postgres://u:p@localhost/faces" {
		t.Errorf("unexpected database URL '%s'", cfg.Database.URL)
	}
	if cfg.Database.SQLitePath != "/tmp/faces.db" {
		t.Errorf("unexpected sqlite path '%s'", cfg.Database.SQLitePath)
	}
}

func TestLoad_GPUFlag(t *testing.T) {
	t.Setenv("FACE_GPU", "true")

	cfg := Load()

	if !cfg.Embedding.GPU {
		t.Error("expected GPU mode to be enabled")
	}
}

func TestLoad_EmptyEnvVars(t *testing.T) {
	os.Unsetenv("OPENAI_TOKEN")
	os.Unsetenv("GEMINI_API_KEY")
	os.Unsetenv("FACE_IMAGE_DIR")

	cfg := Load()

	if cfg.OpenAI.Token != "" {
		t.Errorf("expected empty OpenAI token, got '%s'", cfg.OpenAI.Token)
	}
	if cfg.Images.Dir != "images" {
		t.Errorf("expected default image dir 'images', got '%s'", cfg.Images.Dir)
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", " https://a.example.com, ,https://b.example.com ")

	cfg := Load()

	if len(cfg.Web.AllowedOrigins) != 2 ||
		cfg.Web.AllowedOrigins[0] != "https://a.example.com" ||
		cfg.Web.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("AllowedOrigins = %q", cfg.Web.AllowedOrigins)
	}
}
