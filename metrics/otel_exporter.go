package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter provides OpenTelemetry metrics export following OTel standards
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	collector     Collector

	// OTel meters and instruments
	meter             metric.Meter
	totalGauge        metric.Int64ObservableGauge
	successGauge      metric.Int64ObservableGauge
	failedGauge       metric.Int64ObservableGauge
	pendingRetryGauge metric.Int64ObservableGauge
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format
func NewOTelExporter(collector Collector) (*OTelExporter, error) {
	// Create Prometheus exporter
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	// Create meter provider
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	// Create meter with service info
	meter := meterProvider.Meter(
		"drytrack-api",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		collector:     collector,
		meter:         meter,
	}

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	oe.totalGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.deliveries.total",
		metric.WithDescription("Total delivery records"),
		metric.WithUnit("{deliveries}"),
		metric.WithInt64Callback(oe.observe(func(m Metrics) int64 { return m.Deliveries.Total })),
	)
	if err != nil {
		return fmt.Errorf("creating total gauge: %w", err)
	}

	oe.successGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.deliveries.success",
		metric.WithDescription("Delivery records that reached their subscriber"),
		metric.WithUnit("{deliveries}"),
		metric.WithInt64Callback(oe.observe(func(m Metrics) int64 { return m.Deliveries.Success })),
	)
	if err != nil {
		return fmt.Errorf("creating success gauge: %w", err)
	}

	oe.failedGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.deliveries.failed",
		metric.WithDescription("Delivery records that exhausted their retry budget"),
		metric.WithUnit("{deliveries}"),
		metric.WithInt64Callback(oe.observe(func(m Metrics) int64 { return m.Deliveries.Failed })),
	)
	if err != nil {
		return fmt.Errorf("creating failed gauge: %w", err)
	}

	oe.pendingRetryGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.deliveries.pending_retry",
		metric.WithDescription("Delivery records waiting for a scheduled retry"),
		metric.WithUnit("{deliveries}"),
		metric.WithInt64Callback(oe.observe(func(m Metrics) int64 { return m.Deliveries.PendingRetry })),
	)
	if err != nil {
		return fmt.Errorf("creating pending retry gauge: %w", err)
	}

	return nil
}

// observe adapts one field of the collected metrics into a gauge callback
func (oe *OTelExporter) observe(field func(Metrics) int64) metric.Int64Callback {
	return func(ctx context.Context, observer metric.Int64Observer) error {
		m, err := oe.collector.Collect(ctx)
		if err != nil {
			return fmt.Errorf("collecting metrics: %w", err)
		}
		observer.Observe(field(m))
		return nil
	}
}

// Shutdown flushes and stops the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	return oe.meterProvider.Shutdown(ctx)
}
