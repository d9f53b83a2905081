package ai

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed prompts/text_reading.txt
var textReadingPrompt string

// ocrMaxSize is the longest image side sent to a model.
const ocrMaxSize = 1024

type textResponse struct {
	Texts []TextRegion `json:"texts"`
}

// parseTextResponse decodes the model's JSON answer, dropping empty texts.
func parseTextResponse(content string) ([]TextRegion, error) {
	var resp textResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, err
	}
	regions := make([]TextRegion, 0, len(resp.Texts))
	for _, r := range resp.Texts {
		r.Text = strings.TrimSpace(r.Text)
		if r.Text == "" {
			continue
		}
		regions = append(regions, r)
	}
	return regions, nil
}

// parseErrorFeedback is sent back to the model after an unparsable answer.
func parseErrorFeedback(err error) string {
	return fmt.Sprintf("JSON parse error: %v. Please fix the JSON and try again. Remember to escape quotes inside strings with backslash.", err)
}
