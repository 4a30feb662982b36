package tracer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
)

type currentSpanKey struct{}

// WithSpan installs span as the current span of ctx. Each derived
// context carries its own slot, so concurrent branches taken from a
// common ancestor observe independent current spans.
func WithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, currentSpanKey{}, span)
}

// Current returns the span installed by the nearest enclosing
// WithSpan, or nil if ctx carries none.
func Current(ctx context.Context) *Span {
	span, _ := ctx.Value(currentSpanKey{}).(*Span)
	return span
}

const (
	metaTraceID    = "x-trace-id"
	metaSpanID     = "x-span-id"
	metaResourceID = "x-resource-id"
)

// IncomingMetadata is the subset of gRPC metadata the tracer reads
// from a server-side call.
type IncomingMetadata interface {
	Get(key string) []string
}

func firstOf(md IncomingMetadata, key string) string {
	if md == nil {
		return ""
	}
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func newID() string { return uuid.NewString() }

// StartServerSpan creates a SERVER span for an incoming call. It
// adopts trace_id and parent_span_id from the x-trace-id/x-span-id
// metadata headers if present, generating fresh ones otherwise, and
// adopts resource_id from either x-resource-id metadata or
// requestResourceID (requestResourceID wins when both are set).
func StartServerSpan(service, method string, requestResourceID string, incoming IncomingMetadata, collector Collector) *Span {
	traceID := firstOf(incoming, metaTraceID)
	if traceID == "" {
		traceID = newID()
	}
	parentSpanID := firstOf(incoming, metaSpanID)

	resourceID := firstOf(incoming, metaResourceID)
	if requestResourceID != "" {
		resourceID = requestResourceID
	}

	return &Span{
		TraceID:      traceID,
		SpanID:       newID(),
		ParentSpanID: parentSpanID,
		ResourceID:   resourceID,
		Kind:         Server,
		Service:      service,
		Method:       method,
		Attributes: map[string]any{
			"rpc_service": service,
			"rpc_method":  method,
		},
		StartTime: time.Now(),
		collector: collector,
	}
}

// StartClientSpan creates a CLIENT span for an outgoing call, reading
// ctx's current span as parent (inheriting its trace_id and, unless
// requestResourceID overrides it, its resource_id). It returns the
// span and a populated outgoing metadata object carrying
// x-trace-id/x-span-id/x-resource-id for the wire.
func StartClientSpan(ctx context.Context, service, method, requestResourceID string, collector Collector) (*Span, metadata.MD) {
	parent := Current(ctx)

	traceID := newID()
	resourceID := requestResourceID
	var parentSpanID string
	if parent != nil {
		traceID = parent.TraceID
		parentSpanID = parent.SpanID
		if resourceID == "" {
			resourceID = parent.ResourceID
		}
	}

	span := &Span{
		TraceID:      traceID,
		SpanID:       newID(),
		ParentSpanID: parentSpanID,
		ResourceID:   resourceID,
		Kind:         Client,
		Service:      service,
		Method:       method,
		Attributes: map[string]any{
			"rpc_service": service,
			"rpc_method":  method,
		},
		StartTime: time.Now(),
		collector: collector,
	}

	md := metadata.MD{}
	md.Set(metaTraceID, span.TraceID)
	md.Set(metaSpanID, span.SpanID)
	if span.ResourceID != "" {
		md.Set(metaResourceID, span.ResourceID)
	}
	return span, md
}

// StartInternalSpan creates an INTERNAL span for multi-step work that
// is not itself an RPC — e.g. a supervisor action or an llmgateway
// call sequence that precedes an outbound CLIENT call. It inherits
// trace_id and resource_id from ctx's current span, if any, generating
// a fresh trace_id when there is none; the returned span is suitable
// as the parent of a nested StartClientSpan once installed via
// WithSpan.
func StartInternalSpan(ctx context.Context, service, method, requestResourceID string, collector Collector) *Span {
	parent := Current(ctx)

	traceID := newID()
	resourceID := requestResourceID
	var parentSpanID string
	if parent != nil {
		traceID = parent.TraceID
		parentSpanID = parent.SpanID
		if resourceID == "" {
			resourceID = parent.ResourceID
		}
	}

	return &Span{
		TraceID:      traceID,
		SpanID:       newID(),
		ParentSpanID: parentSpanID,
		ResourceID:   resourceID,
		Kind:         Internal,
		Service:      service,
		Method:       method,
		Attributes: map[string]any{
			"rpc_service": service,
			"rpc_method":  method,
		},
		StartTime: time.Now(),
		collector: collector,
	}
}
