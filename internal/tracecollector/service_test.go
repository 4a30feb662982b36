package tracecollector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forwardimpact/monorepo-sub001/internal/tracer"
)

func TestServiceRecordSpanAndQuerySpansRoundTrip(t *testing.T) {
	t.Parallel()

	store := newStoreWithCollection(&fakeCollection{}, time.Second)
	svc := NewService(store, nil)
	def := svc.ServiceDefinition()

	record, ok := def.Unary["RecordSpan"]
	require.True(t, ok)
	_, err := record(context.Background(), map[string]any{
		"span": map[string]any{
			"trace_id":    "trace-1",
			"span_id":     "span-1",
			"resource_id": "resource-1",
			"kind":        "SERVER",
			"service":     "Trace",
			"method":      "RecordSpan",
		},
	})
	require.NoError(t, err)

	query, ok := def.Unary["QuerySpans"]
	require.True(t, ok)
	resp, err := query(context.Background(), map[string]any{"trace_id": "trace-1"})
	require.NoError(t, err)

	out, ok := resp.(querySpansResponse)
	require.True(t, ok)
	require.Len(t, out.Spans, 1)
	assert.Equal(t, "span-1", out.Spans[0].SpanID)
}

func TestServiceRecordSpanRejectsMissingSpan(t *testing.T) {
	t.Parallel()

	store := newStoreWithCollection(&fakeCollection{}, time.Second)
	svc := NewService(store, nil)
	def := svc.ServiceDefinition()

	record := def.Unary["RecordSpan"]
	_, err := record(context.Background(), map[string]any{})
	require.Error(t, err)
}

func TestToWireSpanCarriesEvents(t *testing.T) {
	t.Parallel()

	span := &tracer.Span{TraceID: "t1", SpanID: "s1", Kind: tracer.Client}
	span.AddEvent("request_sent", map[string]any{"attempt": 1})

	wire := ToWireSpan(span)
	require.Len(t, wire.Events, 1)
	assert.Equal(t, "request_sent", wire.Events[0].Name)
	assert.Equal(t, "CLIENT", wire.Kind)
}
