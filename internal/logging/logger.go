// Package logging provides the structured Logger interface used throughout
// the pipeline, backed by zerolog instead of a hand-rolled JSON encoder.
package logging

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger is the structured logging interface every component depends on.
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})

	InfoContext(ctx context.Context, msg string, fields ...interface{})
	WarnContext(ctx context.Context, msg string, fields ...interface{})
	ErrorContext(ctx context.Context, msg string, fields ...interface{})
	DebugContext(ctx context.Context, msg string, fields ...interface{})

	WithTraceID(traceID string) Logger
	WithComponent(component string) Logger
}

// ContextKey is the type used for context values this package owns.
type ContextKey string

const TraceIDKey ContextKey = "trace_id"

// LogLevel mirrors zerolog's level scale so callers never import zerolog directly.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) zerologLevel() zerolog.Level {
	switch l {
	case DEBUG:
		return zerolog.DebugLevel
	case INFO:
		return zerolog.InfoLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// StructuredLogger implements Logger on top of a zerolog.Logger.
type StructuredLogger struct {
	zl        zerolog.Logger
	traceID   string
	component string
}

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
}

// NewLogger creates a structured logger writing JSON to stdout (the default
// when LOG_JSON is unset), or a console-friendly writer when LOG_JSON is false.
func NewLogger(level LogLevel) Logger {
	var w zerolog.Logger
	if getEnvBool("LOG_JSON", true) {
		w = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		w = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	w = w.Level(level.zerologLevel())
	return &StructuredLogger{zl: w}
}

// NewLoggerWithTrace creates a logger pre-populated with a trace ID.
func NewLoggerWithTrace(level LogLevel, traceID string) Logger {
	l := NewLogger(level).(*StructuredLogger)
	return l.WithTraceID(traceID)
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val == "true" || val == "1"
}

// WithTraceID returns a logger that stamps trace_id on every entry.
func (l *StructuredLogger) WithTraceID(traceID string) Logger {
	return &StructuredLogger{
		zl:        l.zl.With().Str("trace_id", traceID).Logger(),
		traceID:   traceID,
		component: l.component,
	}
}

// WithComponent returns a logger that stamps component on every entry.
func (l *StructuredLogger) WithComponent(component string) Logger {
	return &StructuredLogger{
		zl:        l.zl.With().Str("component", component).Logger(),
		traceID:   l.traceID,
		component: component,
	}
}

func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	logWithFields(l.zl.Info(), msg, fields...)
}

func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	logWithFields(l.zl.Warn(), msg, fields...)
}

func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	logWithFields(l.zl.Error(), msg, fields...)
}

func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	logWithFields(l.zl.Debug(), msg, fields...)
}

func (l *StructuredLogger) Fatal(msg string, fields ...interface{}) {
	logWithFields(l.zl.WithLevel(zerolog.FatalLevel), msg, fields...)
	os.Exit(1)
}

func (l *StructuredLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	l.withContextTrace(ctx).Info(msg, fields...)
}

func (l *StructuredLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	l.withContextTrace(ctx).Warn(msg, fields...)
}

func (l *StructuredLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	l.withContextTrace(ctx).Error(msg, fields...)
}

func (l *StructuredLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	l.withContextTrace(ctx).Debug(msg, fields...)
}

// withContextTrace returns l unchanged, or a copy stamped with the trace ID
// carried in ctx (context always takes precedence over the logger's own).
func (l *StructuredLogger) withContextTrace(ctx context.Context) *StructuredLogger {
	traceID := extractTraceID(ctx)
	if traceID == "" || traceID == l.traceID {
		return l
	}
	return &StructuredLogger{
		zl:        l.zl.With().Str("trace_id", traceID).Logger(),
		traceID:   traceID,
		component: l.component,
	}
}

// logWithFields parses an alternating key/value slice onto a zerolog event.
func logWithFields(event *zerolog.Event, msg string, fields ...interface{}) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", fields[i])
		}
		event = event.Interface(key, fields[i+1])
	}
	event.Msg(msg)
}

func extractTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

var defaultLogger = NewLogger(INFO)

func Info(msg string, fields ...interface{})  { defaultLogger.Info(msg, fields...) }
func Warn(msg string, fields ...interface{})  { defaultLogger.Warn(msg, fields...) }
func Error(msg string, fields ...interface{}) { defaultLogger.Error(msg, fields...) }
func Debug(msg string, fields ...interface{}) { defaultLogger.Debug(msg, fields...) }
func Fatal(msg string, fields ...interface{}) { defaultLogger.Fatal(msg, fields...) }

func InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	defaultLogger.InfoContext(ctx, msg, fields...)
}
func WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	defaultLogger.WarnContext(ctx, msg, fields...)
}
func ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	defaultLogger.ErrorContext(ctx, msg, fields...)
}
func DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	defaultLogger.DebugContext(ctx, msg, fields...)
}

// GenerateTraceID returns a fresh v4 UUID for correlating one query's logs.
func GenerateTraceID() string {
	return uuid.New().String()
}

// WithTraceID stores traceID (generating one if empty) in ctx.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = GenerateTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID reads the trace ID stored in ctx, if any.
func GetTraceID(ctx context.Context) string {
	return extractTraceID(ctx)
}

// WithComponent returns a component-scoped logger derived from the default.
func WithComponent(component string) Logger {
	return defaultLogger.WithComponent(component)
}

// ParseLogLevel parses a level name, defaulting to INFO on an unknown value.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// SetDefaultLogger replaces the package-level default logger instance.
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}
