package emitter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yairfalse/kartta/pkg/resource"
)

// MetricsEmitter counts envelopes by resource type before passing them on.
type MetricsEmitter struct {
	next    Emitter
	emitted metric.Int64Counter
	failed  metric.Int64Counter
}

// NewMetricsEmitter wraps next. A nil meter uses the global provider.
func NewMetricsEmitter(next Emitter, meter metric.Meter) (*MetricsEmitter, error) {
	if meter == nil {
		meter = otel.Meter("kartta")
	}

	emitted, err := meter.Int64Counter(
		"kartta_envelopes_emitted_total",
		metric.WithDescription("Envelopes accepted by the sink"),
	)
	if err != nil {
		return nil, fmt.Errorf("create envelopes_emitted counter: %w", err)
	}

	failed, err := meter.Int64Counter(
		"kartta_envelopes_failed_total",
		metric.WithDescription("Envelopes rejected by the sink"),
	)
	if err != nil {
		return nil, fmt.Errorf("create envelopes_failed counter: %w", err)
	}

	return &MetricsEmitter{next: next, emitted: emitted, failed: failed}, nil
}

// Emit forwards env and records the outcome.
func (e *MetricsEmitter) Emit(ctx context.Context, env resource.Envelope) error {
	attrs := metric.WithAttributes(
		attribute.String("resource_type", env.Contents.ResourceType()),
		attribute.String("region", env.Contents.Region()),
	)

	if err := e.next.Emit(ctx, env); err != nil {
		e.failed.Add(ctx, 1, attrs)
		return err
	}
	e.emitted.Add(ctx, 1, attrs)
	return nil
}

// Close closes the wrapped emitter.
func (e *MetricsEmitter) Close() error {
	return e.next.Close()
}
