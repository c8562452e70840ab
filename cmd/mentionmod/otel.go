package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/carlmjohnson/versioninfo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Traces go to an OTLP HTTP collector when OTEL_EXPORTER_OTLP_ENDPOINT is set (eg, http://localhost:4318). The other OTEL_EXPORTER_OTLP_* variables are honored too.
//
// Spans carry the moderated instance, so one collector can serve bots on several instances. The returned function flushes and stops the exporter.
func configOTEL(ctx context.Context, serviceName, instance string) (func(context.Context), error) {
	ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if ep == "" {
		return func(context.Context) {}, nil
	}
	slog.Info("setting up trace exporter", "endpoint", ep)

	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(versioninfo.Short()),
			attribute.String("environment", os.Getenv("ENVIRONMENT")),
			attribute.String("misskey.instance", instance),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return func(ctx context.Context) {
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown trace exporter", "error", err)
		}
	}, nil
}
