package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentforge"

// StartSpawnSpan starts a span covering one agent spawn, from process launch
// to readiness or failure.
func StartSpawnSpan(ctx context.Context, agentID, templateID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "spawn",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("template.id", templateID),
		),
	)
}

// StartTerminateSpan starts a span for one agent termination.
func StartTerminateSpan(ctx context.Context, agentID string, graceful bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "terminate",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.Bool("terminate.graceful", graceful),
		),
	)
}

// StartRecoverySpan starts a span for one recovery attempt.
func StartRecoverySpan(ctx context.Context, agentID string, attempt int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "recovery",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.Int("recovery.attempt", attempt),
		),
	)
}

// StartScalingSpan starts a span for one scaling execution.
func StartScalingSpan(ctx context.Context, templateID, action string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "scaling",
		trace.WithAttributes(
			attribute.String("template.id", templateID),
			attribute.String("scaling.action", action),
		),
	)
}
