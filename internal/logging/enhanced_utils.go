package logging

import (
	"context"
	"time"

	pipelineerrors "clinical-nlq/internal/errors"
)

// EnhancedLogger wraps a Logger with operation-timing and error-context helpers.
type EnhancedLogger struct {
	Logger
	component string
}

// NewEnhancedLogger creates an enhanced logger scoped to a component.
func NewEnhancedLogger(component string) *EnhancedLogger {
	baseLogger := NewLogger(INFO)
	return &EnhancedLogger{
		Logger:    baseLogger.WithComponent(component),
		component: component,
	}
}

// WithContext returns a logger stamped with the trace ID carried in ctx.
func (l *EnhancedLogger) WithContext(ctx context.Context) *EnhancedLogger {
	traceID := GetTraceID(ctx)
	return &EnhancedLogger{
		Logger:    l.Logger.WithTraceID(traceID),
		component: l.component,
	}
}

// WithError logs err, pulling category/stage/operation out when it is an
// *errors.Enhanced instead of just logging the bare message.
func (l *EnhancedLogger) WithError(err error) *EnhancedLogger {
	if err == nil {
		return l
	}
	if enhanced, ok := err.(*pipelineerrors.Enhanced); ok {
		l.Error("enhanced error occurred",
			"error", enhanced.Error(),
			"category", string(enhanced.Context.Category),
			"retryable", enhanced.Retryable(),
			"component", enhanced.Context.Component,
			"operation", enhanced.Context.Operation,
			"stage", enhanced.Context.Stage,
		)
	} else {
		l.Error("error occurred", "error", err.Error())
	}
	return l
}

// LogOperation logs the start and completion (or failure) of fn, with duration.
func (l *EnhancedLogger) LogOperation(operation string, fn func() error) error {
	start := time.Now()
	l.Info("starting operation", "operation", operation)

	err := fn()
	duration := time.Since(start)

	if err != nil {
		l.Error("operation failed",
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
		return err
	}

	l.Info("operation completed",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// LogSlowOperation flags an operation whose duration exceeded expected.
func (l *EnhancedLogger) LogSlowOperation(operation string, duration, expected time.Duration) {
	l.Warn("slow operation detected",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
		"expected_ms", expected.Milliseconds(),
		"slowdown_factor", float64(duration)/float64(expected),
	)
}

// GetComponentLogger returns a fresh enhanced logger for the named component.
func GetComponentLogger(component string) *EnhancedLogger {
	return NewEnhancedLogger(component)
}

// Package-scoped loggers for the pipeline's major components.
var (
	OrchestratorLogger  = NewEnhancedLogger("orchestrator")
	RetrievalLogger     = NewEnhancedLogger("retrieval")
	GenerationLogger    = NewEnhancedLogger("generation")
	VectorStoreLogger   = NewEnhancedLogger("vectorstore")
	MetadataStoreLogger = NewEnhancedLogger("metadatastore")
	CacheLogger         = NewEnhancedLogger("cache")
	APILogger           = NewEnhancedLogger("api")
)
