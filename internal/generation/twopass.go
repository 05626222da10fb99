package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pipelineerrors "clinical-nlq/internal/errors"
	"clinical-nlq/internal/ports"
	"clinical-nlq/internal/reliability"
	"clinical-nlq/internal/types"
)

// Result holds the Two-Pass Generator's output plus token/timing telemetry
// (spec.md 4.15).
type Result struct {
	Extractions     []types.Extraction `json:"extractions"`
	ShortAnswer     string             `json:"short_answer"`
	DetailedSummary string             `json:"detailed_summary"`
	Pass1Tokens     int                `json:"pass1_tokens"`
	Pass2Tokens     int                `json:"pass2_tokens"`
	TotalTokens     int                `json:"total_tokens"`
	ExecutionTimeMs int64              `json:"execution_time_ms"`
}

type extractionPayload struct {
	Extractions []types.Extraction `json:"extractions"`
}

type summaryPayload struct {
	ShortAnswer     string `json:"short_answer"`
	DetailedSummary string `json:"detailed_summary"`
}

// Generator runs the two-pass extraction-then-summarization call against an
// LLM backend, retrying transient failures with spec.md 4.19's backoff
// policy and tripping a circuit breaker around the backend once failures
// accumulate past its threshold.
type Generator struct {
	client  ports.LLMClient
	retrier *reliability.Retrier
	breaker *reliability.CircuitBreaker
}

// NewGenerator wraps an LLM backend with the default three-attempt retry
// policy and the default circuit breaker policy.
func NewGenerator(client ports.LLMClient) *Generator {
	return &Generator{
		client:  client,
		retrier: reliability.New(reliability.DefaultConfig()),
		breaker: reliability.NewBreaker(reliability.DefaultBreakerConfig()),
	}
}

// callLLM runs fn (an extraction or summarization pass) through the retrier
// then the circuit breaker, so a run of transient failures first exhausts
// its retries and then, once the breaker's failure threshold trips, short
// circuits further calls with CIRCUIT_OPEN instead of hitting the backend.
func (g *Generator) callLLM(ctx context.Context, fn func(ctx context.Context) error) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.retrier.Do(ctx, fn).Err
	})
}

// Generate runs pass 1 (extraction) then pass 2 (summarization) and returns
// the combined Result. Fails with GENERATION_INVALID_OUTPUT if either pass's
// JSON does not parse or is missing required fields.
func (g *Generator) Generate(ctx context.Context, sq types.StructuredQuery, candidates []types.RetrievalCandidate) (Result, error) {
	start := time.Now()

	extractions, pass1Tokens, err := g.runExtraction(ctx, sq, candidates)
	if err != nil {
		return Result{}, err
	}

	shortAnswer, detailedSummary, pass2Tokens, err := g.runSummarization(ctx, sq, extractions)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Extractions:     extractions,
		ShortAnswer:     shortAnswer,
		DetailedSummary: detailedSummary,
		Pass1Tokens:     pass1Tokens,
		Pass2Tokens:     pass2Tokens,
		TotalTokens:     pass1Tokens + pass2Tokens,
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (g *Generator) runExtraction(ctx context.Context, sq types.StructuredQuery, candidates []types.RetrievalCandidate) ([]types.Extraction, int, error) {
	system, user := BuildExtractionPrompt(sq, candidates)
	cfg := ExtractionConfig()

	var raw string
	var tokens int
	err := g.callLLM(ctx, func(ctx context.Context) error {
		out, n, err := g.client.Complete(ctx, system, user, cfg.Temperature)
		if err != nil {
			return err
		}
		raw, tokens = out, n
		return nil
	})
	if err != nil {
		if pe, ok := err.(*pipelineerrors.PipelineError); ok && pe.Code == pipelineerrors.CodeCircuitOpen {
			return nil, 0, pe.WithStage("extraction")
		}
		return nil, 0, pipelineerrors.New(pipelineerrors.CodeGenerationInvalidOutput, fmt.Sprintf("extraction pass failed: %v", err))
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, 0, pipelineerrors.New(pipelineerrors.CodeGenerationInvalidOutput, fmt.Sprintf("extraction pass returned invalid JSON: %v", err))
	}
	if payload.Extractions == nil {
		return nil, 0, pipelineerrors.New(pipelineerrors.CodeGenerationInvalidOutput, "extraction pass response missing required field \"extractions\"")
	}

	return payload.Extractions, tokens, nil
}

func (g *Generator) runSummarization(ctx context.Context, sq types.StructuredQuery, extractions []types.Extraction) (string, string, int, error) {
	system, user := BuildSummarizationPrompt(sq, extractions)
	cfg := SummarizationConfig()

	var raw string
	var tokens int
	err := g.callLLM(ctx, func(ctx context.Context) error {
		out, n, err := g.client.Complete(ctx, system, user, cfg.Temperature)
		if err != nil {
			return err
		}
		raw, tokens = out, n
		return nil
	})
	if err != nil {
		if pe, ok := err.(*pipelineerrors.PipelineError); ok && pe.Code == pipelineerrors.CodeCircuitOpen {
			return "", "", 0, pe.WithStage("summarization")
		}
		return "", "", 0, pipelineerrors.New(pipelineerrors.CodeGenerationInvalidOutput, fmt.Sprintf("summarization pass failed: %v", err))
	}

	var payload summaryPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return "", "", 0, pipelineerrors.New(pipelineerrors.CodeGenerationInvalidOutput, fmt.Sprintf("summarization pass returned invalid JSON: %v", err))
	}
	if payload.ShortAnswer == "" {
		return "", "", 0, pipelineerrors.New(pipelineerrors.CodeGenerationInvalidOutput, "summarization pass response missing required field \"short_answer\"")
	}

	return payload.ShortAnswer, payload.DetailedSummary, tokens, nil
}
