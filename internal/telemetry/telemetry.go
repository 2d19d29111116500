// Package telemetry wires OpenTelemetry tracing and metrics exported over
// OTLP/gRPC. With no endpoint configured the global no-op providers stay in
// place and spans and instruments cost nothing.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.38.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "dendroreduce"

// Config selects the OTLP collector
type Config struct {
	Endpoint       string        `yaml:"endpoint"`
	Organization   string        `yaml:"organization"`
	Insecure       bool          `yaml:"insecure"`
	ExportInterval time.Duration `yaml:"export_interval"`
	ServiceName    string        `yaml:"service_name"`
	ServiceVersion string        `yaml:"service_version"`
}

// Enabled reports whether an endpoint is configured
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

type Telemetry struct {
	Meter      metric.Meter
	Tracer     trace.Tracer
	Instrument *Instrument

	shutdown []func(context.Context) error
}

// New installs global tracer and meter providers exporting to cfg.Endpoint.
// A disabled config returns telemetry backed by the current global
// providers.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled() {
		return Default()
	}

	attributes := []attribute.KeyValue{semconv.ServiceName(orDefault(cfg.ServiceName, instrumentationName))}
	if cfg.ServiceVersion != "" {
		attributes = append(attributes, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attributes...))
	if err != nil {
		return nil, fmt.Errorf("unable to initialize resource: %w", err)
	}

	t := &Telemetry{}

	metricExporter, err := otlpmetricgrpc.New(ctx, metricOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize metric exporter: %w", err)
	}
	traceExporter, err := otlptracegrpc.New(ctx, traceOptions(cfg)...)
	if err != nil {
		t.shutdown = append(t.shutdown, metricExporter.Shutdown)
		return nil, t.abort(ctx, fmt.Errorf("unable to initialize trace exporter: %w", err))
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = time.Minute
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			metricExporter,
			sdkmetric.WithInterval(interval),
		)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)
	t.shutdown = append(t.shutdown, meterProvider.Shutdown)

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.shutdown = append(t.shutdown, tracerProvider.Shutdown)

	t.Meter = otel.Meter(instrumentationName)
	t.Tracer = otel.Tracer(instrumentationName)
	t.Instrument, err = NewInstrument(t.Meter)
	if err != nil {
		return nil, t.abort(ctx, err)
	}
	return t, nil
}

// abort shuts down whatever New already started and returns err joined
// with any shutdown failure
func (t *Telemetry) abort(ctx context.Context, err error) error {
	return errors.Join(err, t.Shutdown(ctx))
}

// Default returns telemetry on the current global providers
func Default() (*Telemetry, error) {
	meter := otel.Meter(instrumentationName)
	instrument, err := NewInstrument(meter)
	if err != nil {
		return nil, err
	}
	return &Telemetry{
		Meter:      meter,
		Tracer:     otel.Tracer(instrumentationName),
		Instrument: instrument,
	}, nil
}

// Shutdown flushes and stops the exporters
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func metricOptions(cfg Config) []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Organization != "" {
		opts = append(opts, otlpmetricgrpc.WithHeaders(map[string]string{"X-Scope-OrgID": cfg.Organization}))
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return opts
}

func traceOptions(cfg Config) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Organization != "" {
		opts = append(opts, otlptracegrpc.WithHeaders(map[string]string{"X-Scope-OrgID": cfg.Organization}))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
