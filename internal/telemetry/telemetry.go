// Package telemetry installs the OpenTelemetry tracer provider used by the
// optimizer spans.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"

	"tourplan/internal/buildinfo"
	"tourplan/internal/config"
)

// ErrUnknownExporter is returned for an unsupported trace exporter name.
var ErrUnknownExporter = errors.New("unknown trace exporter")

// Shutdown flushes and stops whatever Init installed.
type Shutdown func(context.Context) error

// Init installs a global tracer provider for cfg.TraceExporter. With "none"
// the otel no-op provider stays in place and the returned Shutdown does
// nothing. Spans from the stdout exporter go to w, or os.Stderr when w is nil.
func Init(ctx context.Context, cfg config.TelemetryConfig, w io.Writer) (Shutdown, error) {
	noop := func(context.Context) error { return nil }
	switch cfg.TraceExporter {
	case "", "none":
		return noop, nil
	case "stdout":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, cfg.TraceExporter)
	}
	if w == nil {
		w = os.Stderr
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}
	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", buildinfo.Version),
	)
	tp := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
