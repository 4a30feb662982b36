package tracer

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc/metadata"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
)

// UnaryHandler is a server-side unary handler observed by
// ObserveServerUnaryCall.
type UnaryHandler func(ctx context.Context, request any) (response any, err error)

// ObserveServerUnaryCall starts a SERVER span for method, installs it
// as current for the handler's execution, records request_received
// and response_sent events, sets OK/ERROR status from the outcome,
// and finalizes the span exactly once. On error, the returned error is
// enriched with the span's trace_id/span_id/service_name before being
// returned to the caller for status translation.
func ObserveServerUnaryCall(ctx context.Context, service, method string, requestResourceID string, request any, incoming IncomingMetadata, collector Collector, handler UnaryHandler) (any, error) {
	span := StartServerSpan(service, method, requestResourceID, incoming, collector)
	ctx = WithSpan(ctx, span)
	span.AddEvent("request_received", nil)

	resp, err := handler(ctx, request)

	if err != nil {
		span.AddEvent("error", map[string]any{"message": err.Error()})
		span.SetStatus(codes.Error, err.Error())
		span.End()
		fe, ok := faults.As(err)
		if !ok {
			fe = faults.Internalf(err, "%s", err.Error())
		}
		return nil, fe.WithTrace(span.TraceID, span.SpanID, service)
	}

	span.AddEvent("response_sent", nil)
	span.SetStatus(codes.Ok, "")
	span.End()
	return resp, nil
}

// StreamHandler is a server-side streaming handler observed by
// ObserveServerStreamingCall. It is responsible for writing every
// chunk to the stream itself; errors returned here are treated as the
// terminal outcome of the stream.
type StreamHandler func(ctx context.Context) error

// ObserveServerStreamingCall is the streaming analogue of
// ObserveServerUnaryCall: stream_ended replaces response_sent.
func ObserveServerStreamingCall(ctx context.Context, service, method string, requestResourceID string, incoming IncomingMetadata, collector Collector, handler StreamHandler) error {
	span := StartServerSpan(service, method, requestResourceID, incoming, collector)
	ctx = WithSpan(ctx, span)
	span.AddEvent("request_received", nil)

	err := handler(ctx)

	if err != nil {
		span.AddEvent("error", map[string]any{"message": err.Error()})
		span.SetStatus(codes.Error, err.Error())
		span.End()
		fe, ok := faults.As(err)
		if !ok {
			fe = faults.Internalf(err, "%s", err.Error())
		}
		return fe.WithTrace(span.TraceID, span.SpanID, service)
	}

	span.AddEvent("stream_ended", nil)
	span.SetStatus(codes.Ok, "")
	span.End()
	return nil
}

// UnaryCall is a client-side unary invocation observed by
// ObserveClientUnaryCall: it receives the populated outgoing metadata
// and performs the actual RPC.
type UnaryCall func(ctx context.Context, md metadata.MD) (response any, err error)

// ObserveClientUnaryCall starts a CLIENT span, builds outgoing
// metadata from it, invokes call, and finalizes the span with the
// outcome's status.
func ObserveClientUnaryCall(ctx context.Context, service, method, requestResourceID string, collector Collector, call UnaryCall) (any, error) {
	span, md := StartClientSpan(ctx, service, method, requestResourceID, collector)
	defer span.End()

	resp, err := call(ctx, md)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// StreamCall is a client-side streaming invocation observed by
// ObserveClientStreamingCall.
type StreamCall func(ctx context.Context, md metadata.MD) error

// ObserveClientStreamingCall is the streaming analogue of
// ObserveClientUnaryCall.
func ObserveClientStreamingCall(ctx context.Context, service, method, requestResourceID string, collector Collector, call StreamCall) error {
	span, md := StartClientSpan(ctx, service, method, requestResourceID, collector)
	defer span.End()

	err := call(ctx, md)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}
