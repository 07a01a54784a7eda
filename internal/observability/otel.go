// Package observability sets up OpenTelemetry export and the zap logger.
package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ServiceName is reported on every span and log record.
const ServiceName = "icad"

// Config selects the OTLP/HTTP collector. An empty Endpoint keeps
// telemetry local: spans are not exported and logs go to stdout only.
type Config struct {
	Endpoint       string            `yaml:"endpoint" mapstructure:"endpoint"`
	Headers        map[string]string `yaml:"headers" mapstructure:"headers"`
	Insecure       bool              `yaml:"insecure" mapstructure:"insecure"`
	TracesPath     string            `yaml:"traces_path" mapstructure:"traces_path"`
	LogsPath       string            `yaml:"logs_path" mapstructure:"logs_path"`
	ServiceVersion string            `yaml:"service_version" mapstructure:"service_version"`
	LogLevel       string            `yaml:"log_level" mapstructure:"log_level"`
}

// DefaultConfig returns a local-only configuration.
func DefaultConfig() Config {
	return Config{
		TracesPath:     "/v1/traces",
		LogsPath:       "/v1/logs",
		ServiceVersion: "dev",
		LogLevel:       "info",
	}
}

// Enabled reports whether a collector endpoint is configured.
func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

func noopShutdown(context.Context) error { return nil }

func newResource(cfg Config) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
}

// SetupTracingSDK installs the global propagator and, when enabled, a
// batching OTLP tracer provider.
func SetupTracingSDK(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	// Trace context travels in HTTP and Kafka headers.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled() {
		return nil, noopShutdown, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, noopShutdown, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithURLPath(cfg.TracesPath),
		otlptracehttp.WithHeaders(cfg.Headers),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, noopShutdown, fmt.Errorf("failed to setup OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

// SetupLoggingSDK installs the global OTLP logger provider used by the
// otelzap bridge.
func SetupLoggingSDK(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	if !cfg.Enabled() {
		return noopShutdown, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return noopShutdown, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlploghttp.Option{
		otlploghttp.WithEndpoint(cfg.Endpoint),
		otlploghttp.WithURLPath(cfg.LogsPath),
		otlploghttp.WithHeaders(cfg.Headers),
	}
	if cfg.Insecure {
		opts = append(opts, otlploghttp.WithInsecure())
	}
	exporter, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return noopShutdown, fmt.Errorf("failed to setup OTLP log exporter: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter,
			sdklog.WithExportTimeout(30*time.Second),
			sdklog.WithMaxQueueSize(2048),
		)),
	)
	global.SetLoggerProvider(lp)
	return lp.Shutdown, nil
}

// Setup runs both SDK setups and returns a combined LIFO shutdown.
func Setup(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	var shutdownFuncs []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs error
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			errs = errors.Join(errs, shutdownFuncs[i](ctx))
		}
		shutdownFuncs = nil
		return errs
	}

	var setupErr error
	logShutdown, err := SetupLoggingSDK(ctx, cfg)
	setupErr = errors.Join(setupErr, err)
	shutdownFuncs = append(shutdownFuncs, logShutdown)

	tp, traceShutdown, err := SetupTracingSDK(ctx, cfg)
	setupErr = errors.Join(setupErr, err)
	shutdownFuncs = append(shutdownFuncs, traceShutdown)

	return tp, shutdown, setupErr
}
