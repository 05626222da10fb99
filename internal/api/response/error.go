// Package response provides standardized HTTP response structures and
// utilities for the clinical NLQ API layer, built on the pipeline's stable
// error taxonomy (internal/errors) rather than a separate API-level enum.
package response

import (
	"encoding/json"
	"net/http"
	"time"

	pipelineerrors "clinical-nlq/internal/errors"
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error     ErrorDetails `json:"error"`
	Timestamp string       `json:"timestamp"`
	RequestID string       `json:"request_id,omitempty"`
}

// ErrorDetails contains detailed error information.
type ErrorDetails struct {
	Code    pipelineerrors.Code `json:"code"`
	Message string              `json:"message"`
	Details string              `json:"details,omitempty"`
}

// SuccessResponse represents a standardized success response.
type SuccessResponse struct {
	Data      interface{} `json:"data"`
	Message   string      `json:"message,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// WriteError writes a standardized error response.
func WriteError(w http.ResponseWriter, statusCode int, code pipelineerrors.Code, message string, details ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorDetails := ErrorDetails{
		Code:    code,
		Message: message,
	}

	if len(details) > 0 {
		errorDetails.Details = details[0]
	}

	response := ErrorResponse{
		Error:     errorDetails,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: getRequestID(w),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// WritePipelineError writes a *pipelineerrors.PipelineError using its own
// code's HTTP status mapping.
func WritePipelineError(w http.ResponseWriter, err *pipelineerrors.PipelineError) {
	details := ""
	if s, ok := err.Details.(string); ok {
		details = s
	}
	WriteError(w, err.Code.HTTPStatus(), err.Code, err.Message, details)
}

// WriteSuccess writes a standardized success response.
func WriteSuccess(w http.ResponseWriter, data interface{}, message ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := SuccessResponse{
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		WriteError(w, http.StatusInternalServerError, pipelineerrors.CodeInternal, "Failed to encode response")
	}
}

// WriteBadRequest writes a 400 invalid-query error.
func WriteBadRequest(w http.ResponseWriter, message string, details ...string) {
	WriteError(w, http.StatusBadRequest, pipelineerrors.CodeInvalidQuery, message, details...)
}

// WriteNotFound writes a 404 patient-not-found error.
func WriteNotFound(w http.ResponseWriter, message string, details ...string) {
	WriteError(w, http.StatusNotFound, pipelineerrors.CodePatientNotFound, message, details...)
}

// WriteSessionExpired writes a 410 session-expired error.
func WriteSessionExpired(w http.ResponseWriter, message string, details ...string) {
	WriteError(w, http.StatusGone, pipelineerrors.CodeSessionExpired, message, details...)
}

// WriteRateLimited writes a 429 rate-limit-exceeded error.
func WriteRateLimited(w http.ResponseWriter, message string, details ...string) {
	WriteError(w, http.StatusTooManyRequests, pipelineerrors.CodeRateLimitExceeded, message, details...)
}

// WriteInternalError writes a 500 internal error.
func WriteInternalError(w http.ResponseWriter, message string, details ...string) {
	WriteError(w, http.StatusInternalServerError, pipelineerrors.CodeInternal, message, details...)
}

// WriteServiceUnavailable writes a 503 circuit-open error.
func WriteServiceUnavailable(w http.ResponseWriter, message string, details ...string) {
	WriteError(w, http.StatusServiceUnavailable, pipelineerrors.CodeCircuitOpen, message, details...)
}

// WriteTimeout writes a 504 pipeline-timeout error.
func WriteTimeout(w http.ResponseWriter, message string, details ...string) {
	WriteError(w, http.StatusGatewayTimeout, pipelineerrors.CodePipelineTimeout, message, details...)
}

// getRequestID extracts request ID from response writer headers set by the
// logging middleware.
func getRequestID(w http.ResponseWriter) string {
	if reqID := w.Header().Get("X-Request-ID"); reqID != "" {
		return reqID
	}
	return ""
}
