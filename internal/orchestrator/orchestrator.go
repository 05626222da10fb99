// Package orchestrator runs the seven-stage pipeline — query_understanding,
// retrieval, generation, confidence_scoring, provenance_formatting,
// response_building, audit_logging — under a hard deadline and is the sole
// emitter of the user-visible response object (spec.md 4.20).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"clinical-nlq/internal/citation"
	"clinical-nlq/internal/confidence"
	pipelineerrors "clinical-nlq/internal/errors"
	"clinical-nlq/internal/generation"
	"clinical-nlq/internal/logging"
	"clinical-nlq/internal/ports"
	"clinical-nlq/internal/query"
	"clinical-nlq/internal/reliability"
	"clinical-nlq/internal/retrieval"
	"clinical-nlq/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("clinical-nlq/orchestrator")

const partialResultCandidates = 3

// Config bounds the orchestrator's overall deadline (spec.md section 5).
type Config struct {
	OverallDeadline time.Duration
}

// DefaultConfig returns the spec's default 6000ms pipeline deadline.
func DefaultConfig() Config {
	return Config{OverallDeadline: 6000 * time.Millisecond}
}

// Orchestrator wires together query understanding, retrieval, generation,
// confidence calibration, and citation formatting into one answered query.
// The metadata store is called through a circuit breaker: once it trips,
// ListChunks short-circuits with CIRCUIT_OPEN instead of hammering a
// struggling store.
type Orchestrator struct {
	Embedder     ports.EmbeddingProvider
	Store        ports.MetadataStore
	Retriever    *retrieval.Retriever
	Agent        *generation.Agent
	StoreBreaker *reliability.CircuitBreaker
	Config       Config
}

// New constructs an Orchestrator from its collaborators.
func New(embedder ports.EmbeddingProvider, store ports.MetadataStore, retriever *retrieval.Retriever, agent *generation.Agent, cfg Config) *Orchestrator {
	if cfg.OverallDeadline <= 0 {
		cfg = DefaultConfig()
	}
	return &Orchestrator{
		Embedder: embedder, Store: store, Retriever: retriever, Agent: agent, Config: cfg,
		StoreBreaker: reliability.NewBreaker(reliability.DefaultBreakerConfig()),
	}
}

// StageTiming records one stage's wall-clock duration (spec.md section 6,
// metadata.stages).
type StageTiming struct {
	Stage      string `json:"stage"`
	DurationMs int64  `json:"duration_ms"`
}

// Metadata is the response object's metadata block.
type Metadata struct {
	TotalTimeMs int64         `json:"totalTimeMs"`
	Stages      []StageTiming `json:"stages"`
	Partial     bool          `json:"partial,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// ErrorPayload is the response object's error block.
type ErrorPayload struct {
	Code        pipelineerrors.Code `json:"code"`
	Message     string              `json:"message"`
	UserMessage string              `json:"userMessage"`
	Details     interface{}         `json:"details,omitempty"`
}

// Response is the orchestrator's single user-visible output shape (spec.md
// section 6).
type Response struct {
	QueryID               types.QueryID      `json:"queryId"`
	Success               bool               `json:"success"`
	ShortAnswer           string             `json:"shortAnswer,omitempty"`
	DetailedSummary       string             `json:"detailedSummary,omitempty"`
	StructuredExtractions []types.Extraction `json:"structuredExtractions,omitempty"`
	Provenance            []citation.Entry   `json:"provenance,omitempty"`
	Confidence            *confidence.Score  `json:"confidence,omitempty"`
	Error                 *ErrorPayload      `json:"error,omitempty"`
	Metadata              Metadata           `json:"metadata"`
}

// run accumulates stage timings across one Answer call.
type run struct {
	stages []StageTiming
}

func (r *run) record(ctx context.Context, span trace.Span, stage string, start time.Time) {
	duration := time.Since(start)
	r.stages = append(r.stages, StageTiming{Stage: stage, DurationMs: duration.Milliseconds()})
	span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
}

func (r *run) completedStages() []string {
	names := make([]string, len(r.stages))
	for i, s := range r.stages {
		names[i] = s.Stage
	}
	return names
}

// Answer runs the full pipeline for one query against one patient, honoring
// the configured deadline. It never returns a Go error: every failure is
// folded into the returned Response's Error block, since the orchestrator is
// the sole point that converts a classified error into the user-visible
// response.
func (o *Orchestrator) Answer(ctx context.Context, queryText string, patientID types.PatientID, now time.Time) Response {
	ctx, span := tracer.Start(ctx, "orchestrator.Answer", trace.WithAttributes(
		attribute.String("patient_id", string(patientID)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.Config.OverallDeadline)
	defer cancel()

	start := time.Now()
	r := &run{}

	sq, done := o.understandStage(ctx, r, queryText, patientID, now)
	if done != nil {
		done.Metadata.TotalTimeMs = time.Since(start).Milliseconds()
		done.Metadata.Stages = r.stages
		return *done
	}

	resp := o.answerStructured(ctx, r, start, sq, now)
	return resp
}

// AnswerStructured runs the pipeline from retrieval onward for a
// StructuredQuery a caller has already built (and possibly resolved against
// conversation context), skipping the query_understanding stage.
func (o *Orchestrator) AnswerStructured(ctx context.Context, sq types.StructuredQuery, now time.Time) Response {
	ctx, span := tracer.Start(ctx, "orchestrator.AnswerStructured", trace.WithAttributes(
		attribute.String("patient_id", string(sq.PatientID)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.Config.OverallDeadline)
	defer cancel()

	start := time.Now()
	r := &run{}
	return o.answerStructured(ctx, r, start, sq, now)
}

func (o *Orchestrator) answerStructured(ctx context.Context, r *run, start time.Time, sq types.StructuredQuery, now time.Time) Response {
	retrievalResult, done := o.retrievalStage(ctx, r, sq)
	if done != nil {
		done.Metadata.TotalTimeMs = time.Since(start).Milliseconds()
		done.Metadata.Stages = r.stages
		return *done
	}

	resp := o.generateStage(ctx, r, sq, retrievalResult, now)
	resp.Metadata.TotalTimeMs = time.Since(start).Milliseconds()
	resp.Metadata.Stages = r.stages
	return resp
}

// understandStage runs query_understanding. It returns a non-nil *Response
// when the pipeline must stop early (error or deadline).
func (o *Orchestrator) understandStage(ctx context.Context, r *run, queryText string, patientID types.PatientID, now time.Time) (types.StructuredQuery, *Response) {
	stageStart := time.Now()
	_, understandSpan := tracer.Start(ctx, "query_understanding")
	sq, err := query.Understand(queryText, patientID, now)
	r.record(ctx, understandSpan, "query_understanding", stageStart)
	understandSpan.End()
	if err != nil {
		understandSpan.RecordError(err)
		understandSpan.SetStatus(codes.Error, err.Error())
		return types.StructuredQuery{}, errorResponse(sq2QueryID(sq), err, r)
	}

	if ctx.Err() != nil {
		return *sq, timeoutResponse(sq.QueryID, r)
	}

	return *sq, nil
}

// retrievalStage runs retrieval for an already-structured query. It returns a
// non-nil *Response when the pipeline must stop early (error or deadline).
func (o *Orchestrator) retrievalStage(ctx context.Context, r *run, sq types.StructuredQuery) (retrieval.Result, *Response) {
	stageStart := time.Now()
	_, retrieveSpan := tracer.Start(ctx, "retrieval")
	var allChunks []types.Chunk
	chunksErr := o.StoreBreaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		allChunks, err = o.Store.ListChunks(ctx, sq.PatientID)
		return err
	})
	if chunksErr != nil {
		retrieveSpan.RecordError(chunksErr)
		retrieveSpan.SetStatus(codes.Error, chunksErr.Error())
		retrieveSpan.End()
		if pe, ok := chunksErr.(*pipelineerrors.PipelineError); ok && pe.Code == pipelineerrors.CodeCircuitOpen {
			return retrieval.Result{}, errorResponse(sq.QueryID, pe.WithStage("retrieval"), r)
		}
		return retrieval.Result{}, errorResponse(sq.QueryID,
			pipelineerrors.New(pipelineerrors.CodeInternal, chunksErr.Error()).WithStage("retrieval"), r)
	}
	queryVector, embedErr := o.embed(ctx, sq.OriginalQuery)
	if embedErr != nil {
		logging.OrchestratorLogger.WithError(embedErr)
	}
	result := o.Retriever.ParallelRetrieve(ctx, sq, queryVector, allChunks, retrieval.DefaultConfig()).Result
	r.record(ctx, retrieveSpan, "retrieval", stageStart)

	if ctx.Err() != nil {
		retrieveSpan.SetStatus(codes.Error, "deadline exceeded")
		retrieveSpan.End()
		return result, partialResponse(sq.QueryID, result, r)
	}
	retrieveSpan.End()

	return result, nil
}

func (o *Orchestrator) generateStage(ctx context.Context, r *run, sq types.StructuredQuery, retrievalResult retrieval.Result, now time.Time) Response {
	if len(retrievalResult.Candidates) == 0 {
		return emptyResultResponse(sq.QueryID, r)
	}

	stageStart := time.Now()
	_, genSpan := tracer.Start(ctx, "generation")
	answer, err := o.Agent.Answer(ctx, sq, retrievalResult.Candidates)
	r.record(ctx, genSpan, "generation", stageStart)
	if err != nil {
		genSpan.RecordError(err)
		genSpan.SetStatus(codes.Error, err.Error())
		genSpan.End()
		if ctx.Err() != nil {
			return partialResponse(sq.QueryID, retrievalResult, r)
		}
		return errorResponse(sq.QueryID, err, r)
	}
	genSpan.End()

	stageStart = time.Now()
	_, confSpan := tracer.Start(ctx, "confidence_scoring")
	score := scoreConfidence(answer, retrievalResult.Candidates)
	r.record(ctx, confSpan, "confidence_scoring", stageStart)
	confSpan.End()

	stageStart = time.Now()
	_, provSpan := tracer.Start(ctx, "provenance_formatting")
	provenance := citation.FormatAll(answer.Extractions, retrievalResult.Candidates, now)
	r.record(ctx, provSpan, "provenance_formatting", stageStart)
	provSpan.End()

	stageStart = time.Now()
	_, buildSpan := tracer.Start(ctx, "response_building")
	resp := Response{
		QueryID:               sq.QueryID,
		Success:               true,
		ShortAnswer:           answer.ShortAnswer,
		DetailedSummary:       answer.DetailedSummary,
		StructuredExtractions: answer.Extractions,
		Provenance:            provenance,
		Confidence:            &score,
	}
	r.record(ctx, buildSpan, "response_building", stageStart)
	buildSpan.End()

	stageStart = time.Now()
	_, auditSpan := tracer.Start(ctx, "audit_logging")
	o.auditLog(sq, resp)
	r.record(ctx, auditSpan, "audit_logging", stageStart)
	auditSpan.End()

	return resp
}

// scoreConfidence calibrates each extraction against its grounding
// candidate and aggregates the per-extraction scores (spec.md 4.17).
func scoreConfidence(answer generation.AnswerResult, candidates []types.RetrievalCandidate) confidence.Score {
	if len(answer.Extractions) == 0 {
		return confidence.Score{Bucket: confidence.BucketVeryHigh, Recommendation: "No evidence was found for this query."}
	}

	byChunk := make(map[types.ChunkID]types.RetrievalCandidate, len(candidates))
	for _, c := range candidates {
		byChunk[c.Chunk.ChunkID] = c
	}

	scores := make([]confidence.Score, 0, len(answer.Extractions))
	for _, e := range answer.Extractions {
		candidate := byChunk[e.Provenance.ChunkID]
		scores = append(scores, confidence.Calibrate(e, candidate, -1))
	}
	return confidence.AggregateScores(scores)
}

func (o *Orchestrator) embed(ctx context.Context, text string) ([]float64, error) {
	if o.Embedder == nil {
		return nil, nil
	}
	return o.Embedder.Embed(ctx, text)
}

// auditLog runs after response assembly and never affects the response
// (spec.md section 7).
func (o *Orchestrator) auditLog(sq types.StructuredQuery, resp Response) {
	logging.OrchestratorLogger.Info("query answered",
		"query_id", string(sq.QueryID), "patient_id", string(sq.PatientID),
		"intent", string(sq.Intent), "success", resp.Success,
		"extraction_count", len(resp.StructuredExtractions),
	)
}

func errorResponse(queryID types.QueryID, err error, r *run) *Response {
	pe, ok := err.(*pipelineerrors.PipelineError)
	if !ok {
		pe = pipelineerrors.New(pipelineerrors.CodeInternal, err.Error())
	}
	return &Response{
		QueryID: queryID,
		Success: false,
		Error: &ErrorPayload{
			Code: pe.Code, Message: pe.Message,
			UserMessage: userMessage(pe.Code),
			Details:     pe.Details,
		},
		Metadata: Metadata{Error: string(pe.Code)},
	}
}

func partialResponse(queryID types.QueryID, result retrieval.Result, r *run) *Response {
	top := result.Candidates
	if len(top) > partialResultCandidates {
		top = top[:partialResultCandidates]
	}

	var summary string
	for i, c := range top {
		summary += fmt.Sprintf("%d. %s\n", i+1, c.Snippet)
	}

	bucket := confidence.BucketVeryHigh
	return &Response{
		QueryID:         queryID,
		Success:         false,
		ShortAnswer:     "Query is taking longer than expected, here are the most relevant records found so far.",
		DetailedSummary: summary,
		Confidence:      &confidence.Score{Bucket: bucket, Recommendation: "Partial result: verify directly against the patient's chart."},
		Error: &ErrorPayload{
			Code: pipelineerrors.CodePipelineTimeout, Message: "pipeline deadline exceeded",
			UserMessage: userMessage(pipelineerrors.CodePipelineTimeout),
		},
		Metadata: Metadata{Partial: true, Error: string(pipelineerrors.CodePipelineTimeout)},
	}
}

// timeoutResponse is returned when the deadline expires before retrieval
// completes: a TIMEOUT error carrying the stages that did finish.
func timeoutResponse(queryID types.QueryID, r *run) *Response {
	return &Response{
		QueryID: queryID,
		Success: false,
		Error: &ErrorPayload{
			Code: pipelineerrors.CodePipelineTimeout, Message: "pipeline deadline exceeded before retrieval completed",
			UserMessage: userMessage(pipelineerrors.CodePipelineTimeout),
			Details:     map[string]interface{}{"completed_stages": r.completedStages()},
		},
		Metadata: Metadata{Error: string(pipelineerrors.CodePipelineTimeout)},
	}
}

func emptyResultResponse(queryID types.QueryID, r *run) Response {
	return Response{
		QueryID:         queryID,
		Success:         true,
		ShortAnswer:     "No relevant information was found in the patient's record for this query.",
		DetailedSummary: "",
		Confidence:      &confidence.Score{Bucket: confidence.BucketVeryHigh, Recommendation: "No evidence was found for this query."},
	}
}

func userMessage(code pipelineerrors.Code) string {
	switch code {
	case pipelineerrors.CodeInvalidQuery:
		return "That query couldn't be understood. Try rephrasing it."
	case pipelineerrors.CodeSessionExpired:
		return "This conversation has expired. Start a new session."
	case pipelineerrors.CodePatientNotFound:
		return "No matching patient record was found."
	case pipelineerrors.CodeRateLimitExceeded:
		return "Too many requests. Please wait and try again."
	case pipelineerrors.CodeGenerationInvalidOutput, pipelineerrors.CodeGenerationProvenanceInvalid:
		return "The answer couldn't be generated reliably. Please try again."
	case pipelineerrors.CodeLLMTimeout, pipelineerrors.CodePipelineTimeout:
		return "Query is taking longer than expected. Please try again."
	case pipelineerrors.CodeCircuitOpen:
		return "This service is temporarily unavailable. Please try again shortly."
	default:
		return "Something went wrong processing this query."
	}
}

func sq2QueryID(sq *types.StructuredQuery) types.QueryID {
	if sq == nil {
		return ""
	}
	return sq.QueryID
}
