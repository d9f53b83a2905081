package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const chatModel = openai.ChatModelGPT4_1Mini

// OpenAIReader reads text through the OpenAI chat completions API.
type OpenAIReader struct {
	client *openai.Client
	usage  Usage
}

// NewOpenAIReader creates a reader. Extra options (a base URL in tests) are passed to the client.
func NewOpenAIReader(apiKey string, opts ...option.RequestOption) *OpenAIReader {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &OpenAIReader{client: &client}
}

func (p *OpenAIReader) GetUsage() *Usage {
	return &p.usage
}

func (p *OpenAIReader) ResetUsage() {
	p.usage = Usage{}
}

func (p *OpenAIReader) Name() string {
	return chatModel
}

func (p *OpenAIReader) ReadText(ctx context.Context, imageData []byte) ([]TextRegion, error) {
	resizedData, err := ResizeImage(imageData, ocrMaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to resize image: %w", err)
	}
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(resizedData)

	messages := []openai.ChatCompletionMessageParamUnion{
		{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(textReadingPrompt),
				},
			},
		},
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						openai.TextContentPart("Read the text in this photo."),
						openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
							URL:    imageURL,
							Detail: "high",
						}),
					},
				},
			},
		},
	}

	var lastError error
	var lastResponse string

	for range maxParseAttempts {
		resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model:    chatModel,
			Messages: messages,
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
			MaxTokens: openai.Int(300),
		})
		if err != nil {
			return nil, fmt.Errorf("OpenAI API error: %w", err)
		}

		if len(resp.Choices) == 0 {
			return nil, errors.New("no response from OpenAI")
		}

		if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
			p.usage.track(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, openAIPricing)
		}

		content := resp.Choices[0].Message.Content
		lastResponse = content

		regions, err := parseTextResponse(content)
		if err != nil {
			lastError = err

			// Add assistant response and error feedback to messages for retry
			messages = append(messages,
				openai.ChatCompletionMessageParamUnion{
					OfAssistant: &openai.ChatCompletionAssistantMessageParam{
						Content: openai.ChatCompletionAssistantMessageParamContentUnion{
							OfString: openai.String(content),
						},
					},
				},
				openai.ChatCompletionMessageParamUnion{
					OfUser: &openai.ChatCompletionUserMessageParam{
						Content: openai.ChatCompletionUserMessageParamContentUnion{
							OfString: openai.String(parseErrorFeedback(err)),
						},
					},
				},
			)
			continue
		}

		return regions, nil
	}

	return nil, fmt.Errorf("failed to parse text JSON after %d attempts: %w (last response: %s)", maxParseAttempts, lastError, lastResponse)
}
