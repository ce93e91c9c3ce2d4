// Package observability wires OpenTelemetry tracing and metrics into the
// dispatch pipeline. Disabled by default; when disabled every handle is
// a no-op so call sites never branch.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/grassrootza/grassroot-dispatch"

// Config controls telemetry behavior.
type Config struct {
	Enabled        bool    `mapstructure:"enabled" json:"enabled"`
	ServiceName    string  `mapstructure:"service_name" json:"service_name"`
	ServiceVersion string  `mapstructure:"service_version" json:"service_version"`
	Environment    string  `mapstructure:"environment" json:"environment"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate     float64 `mapstructure:"sample_rate" json:"sample_rate"`
}

// DefaultConfig returns the disabled default configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "grassroot-dispatch",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4318",
		SampleRate:     1.0,
	}
}

// Telemetry holds the pipeline's tracer, meter, and instruments.
type Telemetry struct {
	config        Config
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider

	bundlesPersisted metric.Int64Counter
	sendsByOutcome   metric.Int64Counter
	sweepRuns        metric.Int64Counter
	sweepSkips       metric.Int64Counter
	deadLetters      metric.Int64Counter
	persistDuration  metric.Float64Histogram
}

// New creates a Telemetry instance. When cfg.Enabled is false the global
// no-op providers back every handle.
func New(cfg Config) (*Telemetry, error) {
	t := &Telemetry{config: cfg}

	if cfg.Enabled {
		if err := t.initTracing(); err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	if t.traceProvider != nil {
		t.tracer = t.traceProvider.Tracer(instrumentationName)
	} else {
		t.tracer = otel.Tracer(instrumentationName)
	}
	t.meter = otel.Meter(instrumentationName)

	if err := t.initInstruments(); err != nil {
		return nil, fmt.Errorf("init instruments: %w", err)
	}
	return t, nil
}

func (t *Telemetry) initTracing() error {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(t.config.ServiceName),
			semconv.ServiceVersion(t.config.ServiceVersion),
			semconv.DeploymentEnvironment(t.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("creating resource: %w", err)
	}

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(t.config.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("creating OTLP exporter: %w", err)
	}

	t.traceProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(t.config.SampleRate)),
	)
	otel.SetTracerProvider(t.traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return nil
}

func (t *Telemetry) initInstruments() error {
	var err error
	if t.bundlesPersisted, err = t.meter.Int64Counter("dispatch.bundles.persisted",
		metric.WithDescription("Bundles persisted, by result")); err != nil {
		return err
	}
	if t.sendsByOutcome, err = t.meter.Int64Counter("dispatch.sends",
		metric.WithDescription("Send attempts, by channel and outcome")); err != nil {
		return err
	}
	if t.sweepRuns, err = t.meter.Int64Counter("dispatch.sweep.runs",
		metric.WithDescription("Sweep executions, by sweep type")); err != nil {
		return err
	}
	if t.sweepSkips, err = t.meter.Int64Counter("dispatch.sweep.skips",
		metric.WithDescription("Sweep firings skipped because a prior run held the lease")); err != nil {
		return err
	}
	if t.deadLetters, err = t.meter.Int64Counter("dispatch.dead_letters",
		metric.WithDescription("Bundles written to the dead letter table")); err != nil {
		return err
	}
	if t.persistDuration, err = t.meter.Float64Histogram("dispatch.persist.duration",
		metric.WithDescription("Bundle persistence duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return err
	}
	return nil
}

// StartSpan opens a span named name under ctx.
func (t *Telemetry) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordBundlePersisted counts one bundle persistence attempt.
func (t *Telemetry) RecordBundlePersisted(ctx context.Context, ok bool, elapsed time.Duration) {
	t.bundlesPersisted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", ok)))
	t.persistDuration.Record(ctx, elapsed.Seconds())
}

// RecordSend counts one send attempt.
func (t *Telemetry) RecordSend(ctx context.Context, channel, outcome string) {
	t.sendsByOutcome.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("outcome", outcome),
	))
}

// RecordSweepRun counts one completed sweep execution.
func (t *Telemetry) RecordSweepRun(ctx context.Context, sweepType string, processed int) {
	t.sweepRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sweep", sweepType),
		attribute.Int("processed", processed),
	))
}

// RecordSweepSkip counts one lease-contended sweep firing.
func (t *Telemetry) RecordSweepSkip(ctx context.Context, sweepType string) {
	t.sweepSkips.Add(ctx, 1, metric.WithAttributes(attribute.String("sweep", sweepType)))
}

// RecordDeadLetter counts one dead-lettered bundle.
func (t *Telemetry) RecordDeadLetter(ctx context.Context, reason string) {
	t.deadLetters.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// Shutdown flushes and stops the trace provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.traceProvider == nil {
		return nil
	}
	return t.traceProvider.Shutdown(ctx)
}
