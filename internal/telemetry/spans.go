package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys used by the broker.
const (
	AttrSessionID     = "broker.session_id"
	AttrPrincipal     = "broker.principal"
	AttrClientType    = "broker.client.type"
	AttrClientVersion = "broker.client.version"
	AttrClientAddr    = "client.address"
	AttrPool          = "broker.pool"
	AttrReason        = "broker.reason"
	AttrTask          = "scheduler.task"
)

// Span names.
const (
	SpanConnect    = "broker.connect"
	SpanDisconnect = "broker.disconnect"
	SpanWork       = "broker.work"
	SpanAcquire    = "pool.acquire"
	SpanTaskRun    = "scheduler.run"
	SpanRedeem     = "credentials.redeem"
)

// SessionAttrs describes the session a span belongs to.
func SessionAttrs(sessionID, principal string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
		attribute.String(AttrPrincipal, principal),
	}
}

// StartSessionSpan starts a span carrying the session attributes.
func StartSessionSpan(ctx context.Context, name, sessionID, principal string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := append(SessionAttrs(sessionID, principal), extra...)
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}
