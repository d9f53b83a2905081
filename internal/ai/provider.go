package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/face-registry/internal/config"
)

// maxParseAttempts is how many times a model is asked for valid JSON before giving up.
const maxParseAttempts = 3

// ErrNoToken is returned when the selected provider has no API key configured.
var ErrNoToken = errors.New("API key not configured")

// TextRegion is one piece of text read from an image.
type TextRegion struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// TextReader reads the text visible in an image, such as a name tag.
type TextReader interface {
	Name() string
	ReadText(ctx context.Context, imageData []byte) ([]TextRegion, error)

	// Usage tracking.
	GetUsage() *Usage
	ResetUsage()
}

// Usage tracks token usage and calculates cost.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalCost    float64 // in USD
}

// RequestPricing holds input/output prices per 1M tokens
type RequestPricing struct {
	Input  float64
	Output float64
}

var (
	openAIPricing = RequestPricing{Input: 0.40, Output: 1.60}
	geminiPricing = RequestPricing{Input: 0.30, Output: 2.50}
)

func (u *Usage) track(inputTokens, outputTokens int64, pricing RequestPricing) {
	u.InputTokens += int(inputTokens)
	u.OutputTokens += int(outputTokens)
	u.TotalCost += float64(inputTokens) / 1_000_000 * pricing.Input
	u.TotalCost += float64(outputTokens) / 1_000_000 * pricing.Output
}

// NewTextReader returns the reader selected by cfg.OCR.Provider.
func NewTextReader(ctx context.Context, cfg *config.Config) (TextReader, error) {
	switch strings.ToLower(cfg.OCR.Provider) {
	case "", "openai":
		if cfg.OpenAI.Token == "" {
			return nil, fmt.Errorf("openai: %w (set OPENAI_TOKEN)", ErrNoToken)
		}
		return NewOpenAIReader(cfg.OpenAI.Token), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("gemini: %w (set GEMINI_API_KEY)", ErrNoToken)
		}
		return NewGeminiReader(ctx, cfg.Gemini.APIKey, "")
	default:
		return nil, fmt.Errorf("unknown OCR provider %q (available: openai, gemini)", cfg.OCR.Provider)
	}
}
