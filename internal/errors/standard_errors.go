// Package errors provides the stable, user-facing error taxonomy used across
// the pipeline (spec.md section 6) plus the Enhanced context-wrapping
// idiom every stage uses to classify failures for retry/circuit-breaking.
package errors

import (
	"fmt"
	"net/http"
)

// Code is one of the pipeline's stable, documented error codes.
type Code string

const (
	CodeInvalidQuery                Code = "INVALID_QUERY"
	CodeSessionExpired              Code = "SESSION_EXPIRED"
	CodePatientNotFound             Code = "PATIENT_NOT_FOUND"
	CodeRateLimitExceeded           Code = "RATE_LIMIT_EXCEEDED"
	CodeRetrievalEmpty              Code = "RETRIEVAL_EMPTY"
	CodeGenerationInvalidOutput     Code = "GENERATION_INVALID_OUTPUT"
	CodeGenerationProvenanceInvalid Code = "GENERATION_PROVENANCE_INVALID"
	CodeLLMTimeout                  Code = "LLM_TIMEOUT"
	CodePipelineTimeout             Code = "PIPELINE_TIMEOUT"
	CodeCircuitOpen                 Code = "CIRCUIT_OPEN"
	CodeInternal                    Code = "INTERNAL"
)

// HTTPStatus returns the HTTP status this code maps to (spec.md section 6).
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidQuery:
		return http.StatusBadRequest
	case CodeSessionExpired:
		return http.StatusGone
	case CodePatientNotFound:
		return http.StatusNotFound
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeRetrievalEmpty:
		return http.StatusOK
	case CodeGenerationInvalidOutput, CodeGenerationProvenanceInvalid:
		return http.StatusBadGateway
	case CodeLLMTimeout, CodePipelineTimeout:
		return http.StatusGatewayTimeout
	case CodeCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PipelineError is the unified error shape returned to API callers.
type PipelineError struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Stage   string      `json:"stage,omitempty"`
}

func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Stage, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates a PipelineError.
func New(code Code, message string) *PipelineError {
	return &PipelineError{Code: code, Message: message}
}

// WithStage returns a copy of the error tagged with the stage it occurred in.
func (e *PipelineError) WithStage(stage string) *PipelineError {
	clone := *e
	clone.Stage = stage
	return &clone
}

// WithDetails returns a copy of the error carrying structured details.
func (e *PipelineError) WithDetails(details interface{}) *PipelineError {
	clone := *e
	clone.Details = details
	return &clone
}
