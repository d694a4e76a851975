// Package observability provides OpenTelemetry tracing setup.
//
// Traces are exported over OTLP HTTP to a local collector (or any
// OTLP-compatible agent). An empty endpoint disables export entirely:
// spans are still created throughout the pipeline but go to the
// default no-op provider, so instrumentation has no cost in
// unconfigured deployments.
package observability

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/formpilot/formpilot/internal/log"
)

// Config for tracing setup.
type Config struct {
	// Endpoint is the OTLP HTTP endpoint (host:port). Empty disables
	// export.
	Endpoint string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// ServiceName is the service name shown in the APM backend.
	ServiceName string
}

// Setup installs a global tracer provider exporting to the configured
// OTLP endpoint. Returns a shutdown function that flushes pending
// spans.
//
// A missing endpoint or exporter failure degrades to disabled tracing
// rather than failing startup.
func Setup(ctx context.Context, cfg Config, logger log.Logger) func(context.Context) error {
	if logger == nil {
		logger = log.NewNop()
	}

	noop := func(context.Context) error { return nil }
	if cfg.Endpoint == "" {
		logger.Debug("tracing disabled, no OTLP endpoint configured")
		return noop
	}

	// The SDK's resource detector picks these up; cheaper than wiring
	// the resource package for two attributes.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("failed to create OTLP exporter, tracing disabled", "error", err)
		return noop
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)

	logger.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tp.Shutdown
}
