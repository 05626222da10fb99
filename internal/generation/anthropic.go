package generation

import (
	"context"
	"fmt"

	"clinical-nlq/internal/ports"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 2048

// AnthropicClient implements ports.LLMClient against Anthropic's Messages
// API.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

var _ ports.LLMClient = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client for the given model, authenticating via
// apiKey (pass "" to fall back to the ANTHROPIC_API_KEY environment
// variable the SDK reads by default).
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...), model: model, maxTokens: defaultMaxTokens}
}

// Complete issues one message call and returns its concatenated text blocks
// plus the total input+output tokens billed for the call.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, int, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(temperature),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", 0, fmt.Errorf("anthropic message: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += variant.Text
		}
	}

	tokens := int(message.Usage.InputTokens + message.Usage.OutputTokens)
	return text, tokens, nil
}
