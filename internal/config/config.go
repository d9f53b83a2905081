package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Matching  MatchingConfig  `yaml:"matching"`
	Images    ImagesConfig    `yaml:"images"`
	Logging   LoggingConfig   `yaml:"logging"`
	Camera    CameraConfig    `yaml:"camera"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	OCR       OCRConfig       `yaml:"ocr"`
	OpenAI    OpenAIConfig    `yaml:"-"`
	Gemini    GeminiConfig    `yaml:"-"`
	Web       WebConfig       `yaml:"web"`
}

type DatabaseConfig struct {
	Backend      string `yaml:"backend"`        // sqlite, postgres or mariadb
	SQLitePath   string `yaml:"sqlite_path"`    // database file for the sqlite backend
	URL          string `yaml:"-"`              // PostgreSQL connection URL
	MariaDBDSN   string `yaml:"-"`              // e.g. faces:faces@tcp(localhost:3306)/faces
	MaxOpenConns int    `yaml:"max_open_conns"` // ignored by sqlite
	MaxIdleConns int    `yaml:"max_idle_conns"` // ignored by sqlite
	EncodingDim  int    `yaml:"-"`              // copied from Matching.EncodingDim
}

type MatchingConfig struct {
	Tolerance   float64 `yaml:"tolerance"`    // maximum Euclidean distance for "same identity"
	EncodingDim int     `yaml:"encoding_dim"` // fixed per deployment
}

type ImagesConfig struct {
	Dir            string `yaml:"dir"`
	CaptureSeconds int    `yaml:"capture_seconds"`
}

type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

type CameraConfig struct {
	Device int `yaml:"device"`
}

type EmbeddingConfig struct {
	Backend   string `yaml:"backend"`    // dlib or http
	ModelsDir string `yaml:"models_dir"` // dlib model files
	URL       string `yaml:"url"`        // remote embedding service
	GPU       bool   `yaml:"-"`          // accurate (CNN) mode instead of HOG
}

type OCRConfig struct {
	Provider string `yaml:"provider"` // openai or gemini
}

type OpenAIConfig struct {
	Token string
}

type GeminiConfig struct {
	APIKey string
}

type WebConfig struct {
	Host             string   `yaml:"host"`
	Port             int      `yaml:"port"`
	ImagesPerPage    int      `yaml:"images_per_page"`
	MinImagesPerPage int      `yaml:"min_images_per_page"`
	AllowedOrigins   []string `yaml:"-"` // extra CORS origins besides localhost
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envPositiveInt is envInt that also rejects zero.
func envPositiveInt(key string, defaultVal int) int {
	if n := envInt(key, defaultVal); n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a positive float, falling back to the default when unset or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envBool accepts the usual strconv spellings (1, true, yes is not one of them).
func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the embedded defaults without looking at the environment.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	cfg.Database.EncodingDim = cfg.Matching.EncodingDim
	return &cfg
}

func Load() *Config {
	cfg := Defaults()

	cfg.Database.Backend = strings.ToLower(envString("FACE_DB_BACKEND", cfg.Database.Backend))
	cfg.Database.SQLitePath = envString("FACE_DB_PATH", cfg.Database.SQLitePath)
	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Database.MariaDBDSN = os.Getenv("MARIADB_DSN")
	cfg.Database.MaxOpenConns = envPositiveInt("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = envPositiveInt("DATABASE_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.Matching.Tolerance = envFloat("FACE_TOLERANCE", cfg.Matching.Tolerance)
	cfg.Matching.EncodingDim = envPositiveInt("FACE_ENCODING_DIM", cfg.Matching.EncodingDim)
	cfg.Database.EncodingDim = cfg.Matching.EncodingDim

	cfg.Images.Dir = envString("FACE_IMAGE_DIR", cfg.Images.Dir)
	cfg.Images.CaptureSeconds = envPositiveInt("FACE_CAPTURE_SECONDS", cfg.Images.CaptureSeconds)

	cfg.Logging.Dir = envString("FACE_LOG_DIR", cfg.Logging.Dir)
	cfg.Logging.Level = envString("FACE_LOG_LEVEL", cfg.Logging.Level)

	cfg.Camera.Device = envInt("FACE_CAMERA_DEVICE", cfg.Camera.Device)

	cfg.Embedding.Backend = strings.ToLower(envString("EMBEDDER", cfg.Embedding.Backend))
	cfg.Embedding.ModelsDir = envString("DLIB_MODELS_DIR", cfg.Embedding.ModelsDir)
	cfg.Embedding.URL = envString("EMBEDDING_URL", cfg.Embedding.URL)
	cfg.Embedding.GPU = envBool("FACE_GPU", false)

	cfg.OCR.Provider = strings.ToLower(envString("OCR_PROVIDER", cfg.OCR.Provider))
	cfg.OpenAI.Token = os.Getenv("OPENAI_TOKEN")
	cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")

	cfg.Web.Host = envString("WEB_HOST", cfg.Web.Host)
	cfg.Web.Port = envPositiveInt("WEB_PORT", cfg.Web.Port)
	cfg.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS")

	return cfg
}
