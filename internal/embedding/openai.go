// Package embedding implements ports.EmbeddingProvider against an external
// embedding model, grounded on the same openai-go client the generation
// backend uses for chat completions.
package embedding

import (
	"context"
	"fmt"

	"clinical-nlq/internal/ports"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider implements ports.EmbeddingProvider against OpenAI's
// embeddings endpoint.
type OpenAIProvider struct {
	sdk        openai.Client
	model      string
	dimensions int
}

var _ ports.EmbeddingProvider = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds a provider for the given embedding model (pass ""
// for apiKey to fall back to the OPENAI_API_KEY environment variable the SDK
// reads by default). dimensions of 0 leaves the model's default.
func NewOpenAIProvider(apiKey, model string, dimensions int) *OpenAIProvider {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &OpenAIProvider{sdk: openai.NewClient(opts...), model: model, dimensions: dimensions}
}

// Embed returns the dense vector for text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	}
	if p.dimensions > 0 {
		params.Dimensions = openai.Int(int64(p.dimensions))
	}

	resp, err := p.sdk.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}

	return resp.Data[0].Embedding, nil
}
