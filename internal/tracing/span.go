package tracing

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// propagator links phase and action spans. It is used for the ExecuteAction
// carrier regardless of the global propagator.
var propagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// StartPhaseSpan starts the span covering one test phase.
func StartPhaseSpan(ctx context.Context, tracer trace.Tracer, name string, clients int, duration time.Duration) (context.Context, trace.Span) {
	spanName := "phase"
	if name != "" {
		spanName = "phase " + name
	}
	attrs := []attribute.KeyValue{
		attribute.Int("symphoner.phase.clients", clients),
		attribute.Int64("symphoner.phase.duration_ms", duration.Milliseconds()),
	}
	if name != "" {
		attrs = append(attrs, attribute.String("symphoner.phase.name", name))
	}
	return tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindInternal), trace.WithAttributes(attrs...))
}

// StartActionSpan starts the span covering one action invocation in a
// client. trace is the carrier received with the action; when it holds a
// valid context the span becomes a child of the phase span.
func StartActionSpan(ctx context.Context, tracer trace.Tracer, action, client string, carrier map[string]string) (context.Context, trace.Span) {
	ctx = Extract(ctx, carrier)
	return tracer.Start(ctx, "action "+action,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("symphoner.action", action),
			attribute.String("symphoner.client", client),
		),
	)
}

// EndSpan finishes a span, recording err as its status.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Carrier returns the trace context of ctx in a form that travels inside a
// command, or nil when ctx carries no valid span.
func Carrier(ctx context.Context) map[string]string {
	if !trace.SpanContextFromContext(ctx).IsValid() {
		return nil
	}
	c := propagation.MapCarrier{}
	propagator.Inject(ctx, c)
	if len(c) == 0 {
		return nil
	}
	return c
}

// Extract returns ctx with the remote span context held in carrier.
func Extract(ctx context.Context, carrier map[string]string) context.Context {
	if len(carrier) == 0 {
		return ctx
	}
	return propagator.Extract(ctx, propagation.MapCarrier(carrier))
}

// InjectHTTPHeaders writes the trace context of ctx into outbound headers
// using the global propagator, which Init installs when propagation is on.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
