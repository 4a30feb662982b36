package tracer_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc/metadata"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/tracer"
)

type recordingCollector struct {
	mu    sync.Mutex
	spans []*tracer.Span
}

func (c *recordingCollector) RecordSpan(span *tracer.Span) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, span)
	return nil
}

func (c *recordingCollector) last() *tracer.Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spans[len(c.spans)-1]
}

func TestStartServerSpanAdoptsIncomingTraceContext(t *testing.T) {
	md := metadata.MD{}
	md.Set("x-trace-id", "trace-1")
	md.Set("x-span-id", "span-1")

	span := tracer.StartServerSpan("Agent", "ProcessUnary", "", md, nil)
	require.Equal(t, "trace-1", span.TraceID)
	require.Equal(t, "span-1", span.ParentSpanID)
	require.NotEmpty(t, span.SpanID)
	require.NotEqual(t, "span-1", span.SpanID)
}

func TestStartServerSpanGeneratesFreshTraceIDWhenAbsent(t *testing.T) {
	span := tracer.StartServerSpan("Agent", "ProcessUnary", "", metadata.MD{}, nil)
	require.NotEmpty(t, span.TraceID)
}

func TestStartServerSpanRequestResourceIDWinsOverMetadata(t *testing.T) {
	md := metadata.MD{}
	md.Set("x-resource-id", "from-metadata")

	span := tracer.StartServerSpan("Agent", "ProcessUnary", "from-request", md, nil)
	require.Equal(t, "from-request", span.ResourceID)
}

func TestStartClientSpanInheritsParentTraceID(t *testing.T) {
	parent := tracer.StartServerSpan("Agent", "ProcessUnary", "res-1", metadata.MD{}, nil)
	ctx := tracer.WithSpan(context.Background(), parent)

	child, md := tracer.StartClientSpan(ctx, "Memory", "GetWindow", "", nil)
	require.Equal(t, parent.TraceID, child.TraceID)
	require.Equal(t, parent.SpanID, child.ParentSpanID)
	require.Equal(t, "res-1", child.ResourceID)
	require.Equal(t, []string{parent.TraceID}, md.Get("x-trace-id"))
}

func TestSpanEndIsIdempotent(t *testing.T) {
	c := &recordingCollector{}
	span := tracer.StartServerSpan("Agent", "ProcessUnary", "", metadata.MD{}, c)
	span.End()
	span.End()
	require.Len(t, c.spans, 1)
}

func TestObserveServerUnaryCallSuccess(t *testing.T) {
	c := &recordingCollector{}
	resp, err := tracer.ObserveServerUnaryCall(context.Background(), "Agent", "ProcessUnary", "", "req", metadata.MD{}, c,
		func(ctx context.Context, request any) (any, error) {
			require.NotNil(t, tracer.Current(ctx))
			return "ok", nil
		})
	require.NoError(t, err)
	require.Equal(t, "ok", resp)
	require.Equal(t, codes.Ok, c.last().StatusCode)
	require.True(t, c.last().Ended())
}

func TestObserveServerUnaryCallEnrichesFaultsError(t *testing.T) {
	c := &recordingCollector{}
	_, err := tracer.ObserveServerUnaryCall(context.Background(), "Agent", "ProcessUnary", "", "req", metadata.MD{}, c,
		func(ctx context.Context, request any) (any, error) {
			return nil, faults.NotFoundf("missing")
		})
	require.Error(t, err)
	fe, ok := faults.As(err)
	require.True(t, ok)
	require.NotEmpty(t, fe.TraceID)
	require.NotEmpty(t, fe.SpanID)
	require.Equal(t, "Agent", fe.ServiceName)
	require.Equal(t, codes.Error, c.last().StatusCode)
}

func TestObserveClientUnaryCallPropagatesMetadata(t *testing.T) {
	c := &recordingCollector{}
	var seenMD metadata.MD
	_, err := tracer.ObserveClientUnaryCall(context.Background(), "Memory", "GetWindow", "", c,
		func(ctx context.Context, md metadata.MD) (any, error) {
			seenMD = md
			return "ok", nil
		})
	require.NoError(t, err)
	require.NotEmpty(t, seenMD.Get("x-trace-id"))
	require.True(t, c.last().Ended())
}

func TestObserveClientUnaryCallSetsErrorStatus(t *testing.T) {
	c := &recordingCollector{}
	_, err := tracer.ObserveClientUnaryCall(context.Background(), "Memory", "GetWindow", "", c,
		func(ctx context.Context, md metadata.MD) (any, error) {
			return nil, errors.New("boom")
		})
	require.Error(t, err)
	require.Equal(t, codes.Error, c.last().StatusCode)
}
