package telemetry

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTELHook adds trace and span IDs to every log entry
type OTELHook struct{}

func (h OTELHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return
	}

	e.Str("trace_id", span.SpanContext().TraceID().String())
	e.Str("span_id", span.SpanContext().SpanID().String())

	if level == zerolog.ErrorLevel {
		span.SetStatus(codes.Error, msg)
	}
}

// Logger wraps zerolog with OTEL integration
type Logger struct {
	zerolog.Logger
}

// NewLogger creates a new logger with OTEL hooks
func NewLogger(service string) *Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", service).
		Logger().
		Hook(OTELHook{})

	return &Logger{Logger: logger}
}

// WithContext returns a logger with context (for trace propagation)
func (l *Logger) WithContext(ctx context.Context) *zerolog.Logger {
	logger := l.Logger.With().Ctx(ctx).Logger()
	return &logger
}

// Convenience methods for query pipeline operations

// LogQueryStarted logs the start of a pipeline invocation.
func (l *Logger) LogQueryStarted(ctx context.Context, totalKeys int) {
	l.WithContext(ctx).Info().
		Int("total_queries", totalKeys).
		Str("operation", "query").
		Msg("query started")
}

// LogListingFailed logs a non-fatal per-key listing failure.
func (l *Logger) LogListingFailed(ctx context.Context, queryKey string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("query_key", queryKey).
		Str("operation", "listing").
		Msg("listing failed, continuing with remaining keys")
}

// LogDescribeFailed logs a skipped resource during enrichment.
func (l *Logger) LogDescribeFailed(ctx context.Context, resourceID string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("resource_id", resourceID).
		Str("operation", "describe").
		Msg("describe failed, keeping listing data")
}

// LogNormalizeFailed logs a single payload that produced no entry.
func (l *Logger) LogNormalizeFailed(ctx context.Context, queryKey string, err error) {
	l.WithContext(ctx).Warn().
		Err(err).
		Str("query_key", queryKey).
		Str("operation", "normalize").
		Msg("payload dropped")
}

// LogCacheWrite logs a cache write for one key.
func (l *Logger) LogCacheWrite(ctx context.Context, key string, count int) {
	l.WithContext(ctx).Debug().
		Str("cache_key", key).
		Int("entries", count).
		Str("operation", "cache_write").
		Msg("cache updated")
}

// LogQueryCompleted logs the terminal state of an invocation.
func (l *Logger) LogQueryCompleted(ctx context.Context, resources int, failedKeys int, durationMs float64) {
	l.WithContext(ctx).Info().
		Int("resources", resources).
		Int("failed_keys", failedKeys).
		Float64("duration_ms", durationMs).
		Str("operation", "query").
		Msg("query completed")
}
