package daemon

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DaemonMetrics holds operational metrics using OTEL semantic conventions
type DaemonMetrics struct {
	scans        metric.Int64Counter
	scanDuration metric.Float64Histogram
	envelopes    metric.Int64Gauge
}

// NewDaemonMetrics creates daemon metrics on the global meter provider.
func NewDaemonMetrics() (*DaemonMetrics, error) {
	return newDaemonMetricsWithProvider(otel.GetMeterProvider())
}

func newDaemonMetricsWithProvider(provider metric.MeterProvider) (*DaemonMetrics, error) {
	meter := provider.Meter("kartta.daemon")

	scans, err := meter.Int64Counter(
		"kartta.daemon.scans",
		metric.WithDescription("Number of discovery scans"),
		metric.WithUnit("{scan}"),
	)
	if err != nil {
		return nil, err
	}

	scanDuration, err := meter.Float64Histogram(
		"kartta.daemon.scan.duration",
		metric.WithDescription("Duration of discovery scans"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	envelopes, err := meter.Int64Gauge(
		"kartta.resources.discovered",
		metric.WithDescription("Envelopes emitted by the last scan per service and region"),
		metric.WithUnit("{resource}"),
	)
	if err != nil {
		return nil, err
	}

	return &DaemonMetrics{
		scans:        scans,
		scanDuration: scanDuration,
		envelopes:    envelopes,
	}, nil
}

// RecordScan records a scan run with status
func (m *DaemonMetrics) RecordScan(ctx context.Context, status string, provider string) {
	m.scans.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("cloud.provider", provider),
		),
	)
}

// RecordScanDuration records scan duration
func (m *DaemonMetrics) RecordScanDuration(ctx context.Context, durationSeconds float64, status string) {
	m.scanDuration.Record(ctx, durationSeconds,
		metric.WithAttributes(
			attribute.String("status", status),
		),
	)
}

// RecordEnvelopes records how many envelopes one unit emitted
func (m *DaemonMetrics) RecordEnvelopes(ctx context.Context, count int64, service string, provider string, region string) {
	m.envelopes.Record(ctx, count,
		metric.WithAttributes(
			attribute.String("service", service),
			attribute.String("cloud.provider", provider),
			attribute.String("cloud.region", region),
		),
	)
}
