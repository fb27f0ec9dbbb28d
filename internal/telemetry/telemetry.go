// Package telemetry installs the OpenTelemetry tracer provider used for backend calls.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.uber.org/zap"
)

// Exporter names accepted in Config.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// Config controls tracing. Tracing is off unless Enabled is set.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=otlp stdout"`
	// Endpoint is the OTLP/HTTP collector address, host:port. Empty uses the exporter default.
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// Setup installs a tracer provider for serviceName according to cfg and returns its shutdown. When
// tracing is disabled, the global no-op provider stays in place and the shutdown does nothing.
func Setup(ctx context.Context, cfg Config, serviceName, version string, logger *zap.Logger) (Shutdown, error) {
	return setup(ctx, cfg, serviceName, version, logger, os.Stdout)
}

func setup(ctx context.Context, cfg Config, serviceName, version string, logger *zap.Logger,
	stdout io.Writer,
) (Shutdown, error) {
	logger = logger.With(zap.String("module", "telemetry"))
	if !cfg.Enabled {
		logger.Debug("Tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := newExporter(ctx, cfg, stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		))
	if err != nil {
		logger.Warn("Failed to build trace resource", zap.Error(err))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Tracing enabled",
		zap.String("exporter", exporterName(cfg)),
		zap.String("endpoint", cfg.Endpoint))

	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, cfg Config, stdout io.Writer) (sdktrace.SpanExporter, error) {
	if exporterName(cfg) == ExporterStdout {
		return stdouttrace.New(stdouttrace.WithWriter(stdout))
	}

	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

func exporterName(cfg Config) string {
	if cfg.Exporter == "" {
		return ExporterOTLP
	}
	return cfg.Exporter
}
