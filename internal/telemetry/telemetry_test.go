package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yairfalse/kartta/internal/config"
	"github.com/yairfalse/kartta/internal/discovery"
)

func testConfig() config.OTELConfig {
	return config.OTELConfig{
		ServiceName: "test-kartta",
		Traces:      config.TracesConfig{Enabled: false, SampleRate: 1.0},
		Metrics:     config.MetricsConfig{Enabled: false},
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := NewProvider(context.Background(), testConfig())
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())

	err = p.Shutdown(context.Background())
	require.NoError(t, err)
}

func TestNewProvider_WithEndpoint(t *testing.T) {
	cfg := config.OTELConfig{
		Endpoint:    "localhost:4317",
		Insecure:    true,
		ServiceName: "test-kartta",
		Traces:      config.TracesConfig{Enabled: true, SampleRate: 1.0},
		Metrics:     config.MetricsConfig{Enabled: true},
	}

	// Exporters connect lazily; no collector is needed.
	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = p.Shutdown(ctx)
}

func TestProvider_StartSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	p, err := NewProvider(context.Background(), testConfig(), WithSpanProcessor(recorder))
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	ctx, span := p.StartSpan(context.Background(), "discover s3")
	require.NotNil(t, ctx)
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "discover s3", ended[0].Name())
}

func sumByOutcome(t *testing.T, rm metricdata.ResourceMetrics, name string) map[string]int64 {
	t.Helper()
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				v, _ := dp.Attributes.Value(attribute.Key("outcome"))
				out[v.AsString()] += dp.Value
			}
		}
	}
	return out
}

func TestProvider_RecordUnit(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	p, err := NewProvider(context.Background(), testConfig(), WithReader(reader))
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	ctx := context.Background()
	p.RecordUnit(ctx, discovery.UnitResult{Service: "s3", Region: "us-east-1", Envelopes: 3, Duration: time.Second})
	p.RecordUnit(ctx, discovery.UnitResult{Service: "rds", Region: "us-east-1", Err: errors.New("denied"), Kind: discovery.KindService, Skipped: 1})
	p.RecordUnit(ctx, discovery.UnitResult{Service: "ec2", Region: "us-east-1", Cancelled: true, Kind: discovery.KindCancelled})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	outcomes := sumByOutcome(t, rm, "kartta_units_total")
	assert.Equal(t, map[string]int64{"ok": 1, "failed": 1, "cancelled": 1}, outcomes)
}

func TestProvider_Handler(t *testing.T) {
	p, err := NewProvider(context.Background(), testConfig())
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	p.RecordUnit(context.Background(), discovery.UnitResult{Service: "s3", Region: "us-east-1", Envelopes: 2})

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "kartta_units")
}

func TestSetupLogging_JSONWithTraceIDs(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	}()

	recorder := tracetest.NewSpanRecorder()
	p, err := NewProvider(context.Background(), testConfig(), WithSpanProcessor(recorder))
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	var buf bytes.Buffer
	require.NoError(t, setupLogging(&buf, "debug", false))

	ctx, span := p.StartSpan(context.Background(), "unit")
	log.Info().Ctx(ctx).Str("module", "s3").Msg("hello")
	span.End()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, span.SpanContext().TraceID().String(), entry["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), entry["span_id"])
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetupLogging_BadLevel(t *testing.T) {
	err := SetupLogging("loud", false)
	require.Error(t, err)
}
