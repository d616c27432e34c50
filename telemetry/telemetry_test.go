package telemetry

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestOTELHook_Run(t *testing.T) {
	tests := []struct {
		name        string
		setupCtx    func() context.Context
		expectTrace bool
	}{
		{
			name:        "no context",
			setupCtx:    func() context.Context { return nil },
			expectTrace: false,
		},
		{
			name:        "context without span",
			setupCtx:    func() context.Context { return context.Background() },
			expectTrace: false,
		},
		{
			name: "context with valid span",
			setupCtx: func() context.Context {
				exporter := tracetest.NewInMemoryExporter()
				provider := trace.NewTracerProvider(trace.WithSyncer(exporter))
				ctx, _ := provider.Tracer("test").Start(context.Background(), "test-span")
				return ctx
			},
			expectTrace: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			hook := OTELHook{}
			event := logger.Info().Ctx(tt.setupCtx())

			hook.Run(event, zerolog.InfoLevel, "test message")
			event.Msg("test")

			if tt.expectTrace {
				assert.Contains(t, buf.String(), "trace_id")
				assert.Contains(t, buf.String(), "span_id")
			} else {
				assert.NotContains(t, buf.String(), "trace_id")
			}
		})
	}
}

func TestOTELHook_ErrorLevel(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(trace.WithSyncer(exporter))
	ctx, span := provider.Tracer("test").Start(context.Background(), "test-span")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	hook := OTELHook{}
	event := logger.Error().Ctx(ctx)

	hook.Run(event, zerolog.ErrorLevel, "listing blew up")
	event.Msg("test error")

	span.End()
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "listing blew up", spans[0].Status.Description)
}

func TestNewLogger(t *testing.T) {
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	logger := NewLogger("test-service")
	logger.Info().Msg("test message")

	_ = w.Close()
	os.Stdout = oldStdout

	buf := make([]byte, 1024)
	n, _ := r.Read(buf)
	output := string(buf[:n])

	assert.NotNil(t, logger)
	assert.Contains(t, output, "test-service")
	assert.Contains(t, output, "test message")
}

func TestLogger_QueryMethods(t *testing.T) {
	var buf bytes.Buffer
	logger := &Logger{Logger: zerolog.New(&buf)}
	ctx := context.Background()

	logger.LogQueryStarted(ctx, 12)
	assert.Contains(t, buf.String(), "query started")
	assert.Contains(t, buf.String(), "12")

	buf.Reset()

	logger.LogListingFailed(ctx, "123456789012:us-east-1:ec2-instance", errors.New("throttled"))
	assert.Contains(t, buf.String(), "listing failed")
	assert.Contains(t, buf.String(), "123456789012:us-east-1:ec2-instance")
	assert.Contains(t, buf.String(), "level\":\"warn")

	buf.Reset()

	logger.LogDescribeFailed(ctx, "orders", errors.New("access denied"))
	assert.Contains(t, buf.String(), "describe failed")
	assert.Contains(t, buf.String(), "orders")

	buf.Reset()

	logger.LogNormalizeFailed(ctx, "123456789012:us-east-1:ec2-instance", errors.New("no identifier"))
	assert.Contains(t, buf.String(), "payload dropped")
	assert.Contains(t, buf.String(), "\"operation\":\"normalize\"")

	buf.Reset()

	logger.LogCacheWrite(ctx, "123456789012:Global:iam-role", 7)
	assert.Contains(t, buf.String(), "cache updated")
	assert.Contains(t, buf.String(), "Global")

	buf.Reset()

	logger.LogQueryCompleted(ctx, 340, 2, 1523.4)
	assert.Contains(t, buf.String(), "query completed")
	assert.Contains(t, buf.String(), "340")
}

func TestInitInstruments(t *testing.T) {
	provider := metric.NewMeterProvider()
	otel.SetMeterProvider(provider)
	Meter = provider.Meter("test")

	err := initInstruments()
	require.NoError(t, err)

	assert.NotNil(t, QueriesStarted)
	assert.NotNil(t, QueryKeysFailed)
	assert.NotNil(t, ResourcesDiscovered)
	assert.NotNil(t, DescribeFailures)
	assert.NotNil(t, CacheServedKeys)
	assert.NotNil(t, PhaseDuration)
	assert.NotNil(t, CacheEntries)

	// Recording must not panic.
	ctx := context.Background()
	QueriesStarted.Add(ctx, 1)
	ResourcesDiscovered.Add(ctx, 250)
	PhaseDuration.Record(ctx, 1.5)
	CacheEntries.Record(ctx, 1000)
}

func TestInitOTEL_NoEndpoint(t *testing.T) {
	oldEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	defer func() {
		if oldEndpoint != "" {
			_ = os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", oldEndpoint)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	// Prometheus export alone needs no collector.
	shutdown, err := InitOTEL(ctx, Config{})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NotNil(t, PrometheusRegistry)

	_ = shutdown(ctx)
}

func TestInitOTEL_WithEndpoint(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	cfg := Config{
		ServiceName:    "kartta-test",
		ServiceVersion: "0.0.1",
		Environment:    "test",
		OTELEndpoint:   "localhost:4317",
		Insecure:       true,
	}

	// Exporter construction is lazy, no collector required.
	shutdown, err := InitOTEL(ctx, cfg)
	assert.NoError(t, err)
	if shutdown != nil {
		_ = shutdown(context.Background())
	}
}
