package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	pipelineerrors "clinical-nlq/internal/errors"
	"clinical-nlq/internal/reliability"
	"clinical-nlq/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLMClient struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeLLMClient) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float64) (string, int, error) {
	idx := f.calls
	f.calls++
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	if err != nil {
		return "", 0, err
	}
	return f.responses[idx], 42, nil
}

func TestGenerate_ParsesBothPassesAndSumsTokens(t *testing.T) {
	client := &fakeLLMClient{responses: []string{
		`{"extractions": [{"type": "general_note", "content": {"text": "stable"}, "provenance": {"artifact_id": "a1", "chunk_id": "c1", "char_offsets": {"start": 0, "end": 5}, "supporting_text": "patie"}}]}`,
		`{"short_answer": "Stable.", "detailed_summary": "The patient remains stable."}`,
	}}
	gen := NewGenerator(client)

	result, err := gen.Generate(context.Background(), types.StructuredQuery{OriginalQuery: "how is the patient"}, sampleCandidates(1))

	require.NoError(t, err)
	assert.Equal(t, "Stable.", result.ShortAnswer)
	assert.Len(t, result.Extractions, 1)
	assert.Equal(t, 84, result.TotalTokens)
}

func TestGenerate_InvalidJSONFailsWithGenerationInvalidOutput(t *testing.T) {
	client := &fakeLLMClient{responses: []string{"not json"}}
	gen := NewGenerator(client)

	_, err := gen.Generate(context.Background(), types.StructuredQuery{OriginalQuery: "q"}, sampleCandidates(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GENERATION_INVALID_OUTPUT")
}

func TestGenerate_RetriesTransientErrorThenSucceeds(t *testing.T) {
	client := &fakeLLMClient{
		errs: []error{errors.New("connection reset"), nil, nil},
		responses: []string{
			"", // consumed by the failed first attempt, never read
			`{"extractions": []}`,
			`{"short_answer": "No findings.", "detailed_summary": ""}`,
		},
	}
	gen := NewGenerator(client)

	result, err := gen.Generate(context.Background(), types.StructuredQuery{OriginalQuery: "q"}, sampleCandidates(1))
	require.NoError(t, err)
	assert.Equal(t, "No findings.", result.ShortAnswer)
}

func TestGenerate_CircuitOpensAfterRepeatedFailureThenShortCircuits(t *testing.T) {
	client := &fakeLLMClient{errs: []error{
		errors.New("down"), errors.New("down"), errors.New("down"),
		errors.New("down"), errors.New("down"), errors.New("down"),
	}}
	gen := NewGenerator(client)
	gen.retrier = reliability.New(&reliability.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 1, RetryIf: func(error) bool { return false }})
	gen.breaker = reliability.NewBreaker(&reliability.BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Hour, MaxConcurrentRequests: 1})

	_, err := gen.Generate(context.Background(), types.StructuredQuery{OriginalQuery: "q"}, sampleCandidates(1))
	require.Error(t, err)
	assert.Equal(t, 1, client.calls)

	_, err = gen.Generate(context.Background(), types.StructuredQuery{OriginalQuery: "q"}, sampleCandidates(1))
	require.Error(t, err)
	pe, ok := err.(*pipelineerrors.PipelineError)
	require.True(t, ok)
	assert.Equal(t, pipelineerrors.CodeCircuitOpen, pe.Code)
	assert.Equal(t, 1, client.calls, "circuit should short-circuit without a second backend call")
}
