package tracecollector

import (
	"context"

	"github.com/forwardimpact/monorepo-sub001/internal/rpc"
	"github.com/forwardimpact/monorepo-sub001/internal/tracer"
)

// RemoteCollector implements tracer.Collector by forwarding spans to
// the trace collector service over RPC. Every service other than the
// trace collector itself wires its server/client span observation
// with one of these rather than a local Store.
type RemoteCollector struct {
	client *rpc.Client
}

// NewRemoteCollector wraps client, which must have been dialed against
// the trace collector service (ServiceName).
func NewRemoteCollector(client *rpc.Client) *RemoteCollector {
	return &RemoteCollector{client: client}
}

// RecordSpan implements tracer.Collector. Span.End discards the error
// this returns (tracer.Span.End: "_ = collector.RecordSpan(s)"), so an
// unreachable trace collector never fails the caller's own request.
func (r *RemoteCollector) RecordSpan(span *tracer.Span) error {
	req := recordSpanRequest{Span: wireSpanPtr(ToWireSpan(span))}
	var resp struct{}
	return r.client.CallUnary(context.Background(), "RecordSpan", req, &resp, span.ResourceID)
}

func wireSpanPtr(w WireSpan) *WireSpan { return &w }
