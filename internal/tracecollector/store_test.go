package tracecollector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.opentelemetry.io/otel/codes"

	"github.com/forwardimpact/monorepo-sub001/internal/tracer"
)

func TestStoreRecordSpanInsertsDocument(t *testing.T) {
	t.Parallel()

	coll := &fakeCollection{}
	store := newStoreWithCollection(coll, time.Second)

	span := &tracer.Span{
		TraceID:    "trace-1",
		SpanID:     "span-1",
		ResourceID: "resource-1",
		Kind:       tracer.Server,
		Service:    "LLM",
		Method:     "CreateCompletions",
		StartTime:  time.Unix(1, 0).UTC(),
		EndTime:    time.Unix(2, 0).UTC(),
		StatusCode: codes.Ok,
	}
	err := store.RecordSpan(span)
	require.NoError(t, err)
	require.Len(t, coll.inserted, 1)
	assert.Equal(t, "trace-1", coll.inserted[0].TraceID)
	assert.Equal(t, "resource-1", coll.inserted[0].ResourceID)
	assert.Equal(t, "SERVER", coll.inserted[0].Kind)
}

func TestStoreRecordSpanRejectsNil(t *testing.T) {
	t.Parallel()

	store := newStoreWithCollection(&fakeCollection{}, time.Second)
	err := store.RecordSpan(nil)
	require.Error(t, err)
}

func TestStoreQuerySpansFiltersByTraceAndResource(t *testing.T) {
	t.Parallel()

	coll := &fakeCollection{
		docs: []spanDocument{
			{TraceID: "t1", ResourceID: "r1", SpanID: "s1", StartTime: time.Unix(1, 0)},
			{TraceID: "t1", ResourceID: "r2", SpanID: "s2", StartTime: time.Unix(2, 0)},
			{TraceID: "t2", ResourceID: "r1", SpanID: "s3", StartTime: time.Unix(3, 0)},
		},
	}
	store := newStoreWithCollection(coll, time.Second)

	spans, err := store.QuerySpans(context.Background(), Query{TraceID: "t1"})
	require.NoError(t, err)
	require.Len(t, spans, 2)

	spans, err = store.QuerySpans(context.Background(), Query{ResourceID: "r1"})
	require.NoError(t, err)
	require.Len(t, spans, 2)

	spans, err = store.QuerySpans(context.Background(), Query{TraceID: "t1", ResourceID: "r2"})
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "s2", spans[0].SpanID)
}

func TestStoreQuerySpansRespectsLimit(t *testing.T) {
	t.Parallel()

	coll := &fakeCollection{
		docs: []spanDocument{
			{TraceID: "t1", SpanID: "s1", StartTime: time.Unix(1, 0)},
			{TraceID: "t1", SpanID: "s2", StartTime: time.Unix(2, 0)},
			{TraceID: "t1", SpanID: "s3", StartTime: time.Unix(3, 0)},
		},
	}
	store := newStoreWithCollection(coll, time.Second)

	spans, err := store.QuerySpans(context.Background(), Query{TraceID: "t1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, spans, 2)
}

type fakeCollection struct {
	inserted []spanDocument
	docs     []spanDocument
}

func (c *fakeCollection) InsertOne(_ context.Context, document any, _ ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error) {
	doc, ok := document.(spanDocument)
	if !ok {
		return nil, nil
	}
	c.inserted = append(c.inserted, doc)
	return &mongodriver.InsertOneResult{}, nil
}

// Find ignores opts: the server-side SetLimit/SetSort the real driver
// would apply is redundant with QuerySpans' own client-side limit and
// sort-independent assertions below, so the fake only needs to honor
// the equality filter.
func (c *fakeCollection) Find(_ context.Context, filter any, _ ...options.Lister[options.FindOptions]) (cursor, error) {
	f, ok := filter.(bson.M)
	if !ok {
		return &fakeCursor{}, nil
	}
	traceID, _ := f["trace_id"].(string)
	resourceID, _ := f["resource_id"].(string)

	var filtered []spanDocument
	for _, doc := range c.docs {
		if traceID != "" && doc.TraceID != traceID {
			continue
		}
		if resourceID != "" && doc.ResourceID != resourceID {
			continue
		}
		filtered = append(filtered, doc)
	}
	return &fakeCursor{docs: filtered}, nil
}

func (c *fakeCollection) Indexes() indexView {
	return fakeIndexView{}
}

type fakeIndexView struct{}

func (fakeIndexView) CreateMany(context.Context, []mongodriver.IndexModel, ...options.Lister[options.CreateIndexesOptions]) ([]string, error) {
	return nil, nil
}

type fakeCursor struct {
	docs []spanDocument
	pos  int
}

func (c *fakeCursor) Next(context.Context) bool {
	if c.pos >= len(c.docs) {
		return false
	}
	c.pos++
	return true
}

func (c *fakeCursor) Decode(val any) error {
	if c.pos == 0 || c.pos > len(c.docs) {
		return nil
	}
	p, ok := val.(*spanDocument)
	if !ok {
		return nil
	}
	*p = c.docs[c.pos-1]
	return nil
}

func (c *fakeCursor) Err() error                  { return nil }
func (c *fakeCursor) Close(context.Context) error { return nil }
