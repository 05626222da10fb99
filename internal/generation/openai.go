package generation

import (
	"context"
	"fmt"

	"clinical-nlq/internal/ports"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIClient implements ports.LLMClient against OpenAI's Chat Completions
// API.
type OpenAIClient struct {
	sdk   openai.Client
	model string
}

var _ ports.LLMClient = (*OpenAIClient)(nil)

// NewOpenAIClient builds a client for the given chat model, authenticating
// via apiKey (pass "" to fall back to the OPENAI_API_KEY environment
// variable the SDK reads by default).
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &OpenAIClient{sdk: openai.NewClient(opts...), model: model}
}

// Complete issues one chat completion and returns its text content plus the
// total tokens billed for the call.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, int, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature: openai.Float(temperature),
	}

	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", 0, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(comp.Choices) == 0 {
		return "", 0, fmt.Errorf("openai chat completion returned no choices")
	}

	return comp.Choices[0].Message.Content, int(comp.Usage.TotalTokens), nil
}
