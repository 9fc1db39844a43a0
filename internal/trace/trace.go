// Package trace wires the OpenTelemetry SDK and exposes the span helpers the
// trading pipeline uses. Cycle and symbol spans carry attributes so one pass
// of the loop can be followed from the controller down to the brokerage call.
package trace

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
	enabled        bool
)

// Init reads LOG_TRACING_ENABLED (default true) and installs the stdout
// exporter when tracing is on.
func Init() error {
	v := os.Getenv("LOG_TRACING_ENABLED")
	enabled = v == "" || v == "true"
	if !enabled {
		return nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return err
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName("trade-bot"),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return err
	}

	tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	tracer = otel.Tracer("trade-bot")
	return nil
}

func Shutdown(ctx context.Context) error {
	if tracerProvider != nil {
		return tracerProvider.Shutdown(ctx)
	}
	return nil
}

func StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if !enabled || tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName, opts...)
}

// StartCycleSpan opens the root span of a pipeline cycle, tagged with the
// cycle ordinal and universe size.
func StartCycleSpan(ctx context.Context, cycle int64, symbols int) (context.Context, trace.Span) {
	return StartSpan(ctx, "bot.RunOnce", trace.WithAttributes(
		attribute.Int64("cycle", cycle),
		attribute.Int("universe.size", symbols),
	))
}

// StartSymbolSpan opens a span for one stage of a symbol's data -> signal ->
// trade pass, tagged with the symbol.
func StartSymbolSpan(ctx context.Context, spanName, symbol string) (context.Context, trace.Span) {
	return StartSpan(ctx, spanName, trace.WithAttributes(
		attribute.String("symbol", symbol),
	))
}

func Enabled() bool {
	return enabled
}

func GetTraceFields(ctx context.Context) (traceID, spanID string, ok bool) {
	if !enabled {
		return "", "", false
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return "", "", false
	}
	return span.SpanContext().TraceID().String(),
		span.SpanContext().SpanID().String(),
		true
}
