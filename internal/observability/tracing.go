package observability

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	defaultBatchTimeout = 5 * time.Second
	serviceName         = "interlines"
)

// InitTracing initializes span export. When disabled it returns a provider
// that records nothing, with zero overhead. The endpoint is either "stdout"
// (or empty) for stderr output, or a file path for span capture.
func InitTracing(ctx context.Context, enabled bool, endpoint string) (*sdktrace.TracerProvider, error) {
	if !enabled {
		return sdktrace.NewTracerProvider(), nil
	}

	var exporterOpts []stdouttrace.Option
	switch endpoint {
	case "", "stdout":
		exporterOpts = append(exporterOpts, stdouttrace.WithWriter(os.Stderr))
	default:
		f, err := os.OpenFile(endpoint, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("cannot open span export target %s: %w", endpoint, err)
		}
		exporterOpts = append(exporterOpts, stdouttrace.WithWriter(f))
	}

	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create span exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("cannot create telemetry resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(defaultBatchTimeout)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// ShutdownTracing flushes pending spans and shuts the provider down. Call it
// before process exit.
func ShutdownTracing(ctx context.Context, provider *sdktrace.TracerProvider) error {
	if provider == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return provider.Shutdown(shutdownCtx)
}
