package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const geminiModel = "gemini-2.5-flash"

// GeminiReader reads text through the Gemini API.
type GeminiReader struct {
	client *genai.Client
	usage  Usage
}

// NewGeminiReader creates a reader. An empty baseURL uses the public endpoint.
func NewGeminiReader(ctx context.Context, apiKey, baseURL string) (*GeminiReader, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiReader{client: client}, nil
}

func (p *GeminiReader) GetUsage() *Usage {
	return &p.usage
}

func (p *GeminiReader) ResetUsage() {
	p.usage = Usage{}
}

func (p *GeminiReader) Name() string {
	return geminiModel
}

func (p *GeminiReader) ReadText(ctx context.Context, imageData []byte) ([]TextRegion, error) {
	resizedData, err := ResizeImage(imageData, ocrMaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: textReadingPrompt},
				{InlineData: &genai.Blob{Data: resizedData, MIMEType: "image/jpeg"}},
			},
		},
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	var lastError error
	var lastResponse string

	for range maxParseAttempts {
		result, err := p.client.Models.GenerateContent(ctx, geminiModel, contents, config)
		if err != nil {
			return nil, fmt.Errorf("gemini API error: %w", err)
		}

		if result.UsageMetadata != nil {
			p.usage.track(int64(result.UsageMetadata.PromptTokenCount), int64(result.UsageMetadata.CandidatesTokenCount), geminiPricing)
		}

		content := result.Text()
		if content == "" {
			return nil, errors.New("no response from Gemini")
		}
		lastResponse = content

		regions, err := parseTextResponse(content)
		if err != nil {
			lastError = err

			// Add model response and error feedback to contents for retry
			contents = append(contents,
				&genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{Text: content}},
				},
				&genai.Content{
					Role:  "user",
					Parts: []*genai.Part{{Text: parseErrorFeedback(err)}},
				},
			)
			continue
		}

		return regions, nil
	}

	return nil, fmt.Errorf("failed to parse text JSON after %d attempts: %w (last response: %s)", maxParseAttempts, lastError, lastResponse)
}
