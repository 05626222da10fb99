package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLogLevel("debug"))
	assert.Equal(t, WARN, ParseLogLevel("WARNING"))
	assert.Equal(t, INFO, ParseLogLevel("bogus"))
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-123")
	assert.Equal(t, "trace-123", GetTraceID(ctx))

	generated := WithTraceID(context.Background(), "")
	assert.NotEmpty(t, GetTraceID(generated))
}

func TestStructuredLogger_ChainingDoesNotPanic(t *testing.T) {
	logger := NewLogger(DEBUG).WithComponent("retrieval").WithTraceID("trace-abc")
	ctx := WithTraceID(context.Background(), "trace-from-ctx")

	logger.Info("candidate ranked", "rank", 1, "score", 0.87)
	logger.Debug("scoring detail")
	logger.Warn("low confidence", "confidence", 0.2)
	logger.InfoContext(ctx, "context-aware log")
}

func TestNoOpLogger_SatisfiesInterface(t *testing.T) {
	var l Logger = NewNoOpLogger()
	l = l.WithComponent("test").WithTraceID("trace")
	l.Info("ignored")
	l.ErrorContext(context.Background(), "ignored")
}

func TestEnhancedLogger_LogOperation(t *testing.T) {
	logger := NewEnhancedLogger("generation")
	err := logger.LogOperation("answer_generation", func() error { return nil })
	assert.NoError(t, err)
}
