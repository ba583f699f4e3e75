// Package telemetry exports scan traces and probe and discovery metrics over
// OTLP/HTTP. When disabled every call is a no-op.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/config"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/internal/scanner"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/titleid"
	"github.com/CodeMonkeyCybersecurity/tmdbscan/pkg/tmdb"
)

// Telemetry observes the scheduler and owns the exporter lifecycle.
type Telemetry interface {
	scanner.Observer
	Close() error
}

type telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	probeCounter     metric.Int64Counter
	discoveryCounter metric.Int64Counter
	probeDuration    metric.Float64Histogram
	batchDuration    metric.Float64Histogram
	inflightGauge    metric.Int64UpDownCounter
}

func New(ctx context.Context, cfg config.TelemetryConfig) (Telemetry, error) {
	if !cfg.Enabled {
		return &noopTelemetry{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var (
		exporter       sdktrace.SpanExporter
		metricExporter sdkmetric.Exporter
	)

	switch cfg.ExporterType {
	case "otlp":
		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		exp, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		exporter = exp

		mexp, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(cfg.Endpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			_ = exp.Shutdown(ctx)
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		metricExporter = mexp
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
	)
	otel.SetMeterProvider(mp)

	t, err := newInstruments(mp.Meter(cfg.ServiceName))
	if err != nil {
		_ = mp.Shutdown(ctx)
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	t.tracerProvider = tp
	t.meterProvider = mp
	return t, nil
}

func newInstruments(meter metric.Meter) (*telemetry, error) {
	probeCounter, err := meter.Int64Counter("tmdbscan.probes.total",
		metric.WithDescription("Probes completed, by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	discoveryCounter, err := meter.Int64Counter("tmdbscan.discoveries.total",
		metric.WithDescription("Titles found"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	probeDuration, err := meter.Float64Histogram("tmdbscan.probe.duration",
		metric.WithDescription("Probe latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	batchDuration, err := meter.Float64Histogram("tmdbscan.prefix.duration",
		metric.WithDescription("Prefix batch duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	inflightGauge, err := meter.Int64UpDownCounter("tmdbscan.probes.inflight",
		metric.WithDescription("Probes currently waiting on or holding a budget slot"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &telemetry{
		probeCounter:     probeCounter,
		discoveryCounter: discoveryCounter,
		probeDuration:    probeDuration,
		batchDuration:    batchDuration,
		inflightGauge:    inflightGauge,
	}, nil
}

func (t *telemetry) BatchStarted(titleid.Target, int) {}

func (t *telemetry) ProbeStarted(task tmdb.Task) {
	t.inflightGauge.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("category", task.Category.String())))
}

func (t *telemetry) ProbeCompleted(o scanner.Outcome) {
	ctx := context.Background()
	category := attribute.String("category", o.Task.Category.String())

	t.inflightGauge.Add(ctx, -1, metric.WithAttributes(category))
	t.probeCounter.Add(ctx, 1, metric.WithAttributes(category, attribute.String("outcome", o.Kind.String())))
	t.probeDuration.Record(ctx, o.Duration.Seconds(), metric.WithAttributes(category))

	if o.Kind == scanner.Found {
		t.discoveryCounter.Add(ctx, 1, metric.WithAttributes(category))
	}
}

func (t *telemetry) BatchFinished(stats scanner.BatchStats) {
	t.batchDuration.Record(context.Background(), stats.Duration.Seconds(),
		metric.WithAttributes(
			attribute.String("category", stats.Category.String()),
			attribute.String("prefix", stats.Prefix),
		))
}

// Close flushes pending metrics and spans, then stops both providers.
func (t *telemetry) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

type noopTelemetry struct{}

func (n *noopTelemetry) BatchStarted(titleid.Target, int) {}
func (n *noopTelemetry) ProbeStarted(tmdb.Task)           {}
func (n *noopTelemetry) ProbeCompleted(scanner.Outcome)   {}
func (n *noopTelemetry) BatchFinished(scanner.BatchStats) {}
func (n *noopTelemetry) Close() error                     { return nil }
