// Package tracecollector implements the trace collector service: a
// MongoDB-backed sink for spans recorded by every other service's
// tracer client, queryable by trace_id and resource_id.
package tracecollector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.opentelemetry.io/otel/codes"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/tracer"
)

const (
	defaultCollection = "spans"
	defaultTimeout    = 5 * time.Second
)

// Options configures the Mongo-backed span store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store persists spans to MongoDB and serves trace_id/resource_id
// queries back against that persistence. It implements
// tracer.Collector, so it can be handed directly to any service's
// ObserveServerUnaryCall/ObserveClientUnaryCall wiring as the
// Collector — except its own RPC server, which must not be wired with
// a tracer client (it would record a span about recording a span).
type Store struct {
	coll    collection
	timeout time.Duration
}

// New builds a Store, ensuring the trace_id and resource_id indexes
// exist on the backing collection.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	mcoll := opts.Client.Database(opts.Database).Collection(collName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	wrapper := mongoCollection{coll: mcoll}
	if err := ensureIndexes(ctx, wrapper); err != nil {
		return nil, err
	}
	return newStoreWithCollection(wrapper, timeout), nil
}

func newStoreWithCollection(coll collection, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{coll: coll, timeout: timeout}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

type eventDocument struct {
	Name       string         `bson:"name"`
	Time       time.Time      `bson:"time"`
	Attributes map[string]any `bson:"attributes,omitempty"`
}

type spanDocument struct {
	ID            bson.ObjectID   `bson:"_id,omitempty"`
	TraceID       string          `bson:"trace_id"`
	SpanID        string          `bson:"span_id"`
	ParentSpanID  string          `bson:"parent_span_id,omitempty"`
	ResourceID    string          `bson:"resource_id,omitempty"`
	Kind          string          `bson:"kind"`
	Service       string          `bson:"service"`
	Method        string          `bson:"method"`
	Attributes    map[string]any  `bson:"attributes,omitempty"`
	Events        []eventDocument `bson:"events,omitempty"`
	StartTime     time.Time       `bson:"start_time"`
	EndTime       time.Time       `bson:"end_time"`
	StatusCode    uint32          `bson:"status_code"`
	StatusMessage string          `bson:"status_message,omitempty"`
}

// RecordSpan implements tracer.Collector for in-process callers: it
// is handed directly to any service's ObserveServerUnaryCall/
// ObserveClientUnaryCall wiring as the Collector when that service and
// this store share a binary. Cross-process callers go through
// Service.RecordSpan/RemoteCollector instead, which carry a WireSpan
// over RPC.
func (s *Store) RecordSpan(span *tracer.Span) error {
	if span == nil {
		return faults.Validationf("trace collector: span is required")
	}
	return s.recordWireSpan(ToWireSpan(span))
}

// recordWireSpan is a fire-and-forget append: the span's fields and
// recorded events are persisted as one document, bounded by the
// store's configured timeout rather than the caller's context, since
// End() callers do not expect to block on the collector.
func (s *Store) recordWireSpan(span WireSpan) error {
	ctx, cancel := s.withTimeout(context.Background())
	defer cancel()

	doc := spanDocument{
		TraceID:       span.TraceID,
		SpanID:        span.SpanID,
		ParentSpanID:  span.ParentSpanID,
		ResourceID:    span.ResourceID,
		Kind:          span.Kind,
		Service:       span.Service,
		Method:        span.Method,
		Attributes:    span.Attributes,
		Events:        span.toEventDocuments(),
		StartTime:     span.StartTime,
		EndTime:       span.EndTime,
		StatusCode:    span.StatusCode,
		StatusMessage: span.StatusMessage,
	}
	_, err := s.coll.InsertOne(ctx, doc)
	if err != nil {
		return faults.Transientf("trace collector: insert span: %v", err)
	}
	return nil
}

// Query selects spans by trace_id and/or resource_id. An empty Query
// matches every span, bounded by Limit (0 means no bound).
type Query struct {
	TraceID    string
	ResourceID string
	Limit      int
}

// QuerySpans runs query against the backing collection and decodes
// matching documents back into Spans, most recent first.
func (s *Store) QuerySpans(ctx context.Context, query Query) (spans []*tracer.Span, err error) {
	filter := bson.M{}
	if query.TraceID != "" {
		filter["trace_id"] = query.TraceID
	}
	if query.ResourceID != "" {
		filter["resource_id"] = query.ResourceID
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	findOpts := options.Find().SetSort(bson.D{{Key: "start_time", Value: -1}})
	if query.Limit > 0 {
		findOpts.SetLimit(int64(query.Limit))
	}

	cur, err := s.coll.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, faults.Transientf("trace collector: query spans: %v", err)
	}
	defer func() {
		if cerr := cur.Close(ctx); err == nil && cerr != nil {
			err = cerr
		}
	}()

	for cur.Next(ctx) {
		var doc spanDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, faults.Transientf("trace collector: decode span: %v", err)
		}
		spans = append(spans, docToSpan(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, faults.Transientf("trace collector: cursor: %v", err)
	}
	if query.Limit > 0 && len(spans) > query.Limit {
		spans = spans[:query.Limit]
	}
	return spans, nil
}

func docToSpan(doc spanDocument) *tracer.Span {
	return &tracer.Span{
		TraceID:       doc.TraceID,
		SpanID:        doc.SpanID,
		ParentSpanID:  doc.ParentSpanID,
		ResourceID:    doc.ResourceID,
		Kind:          tracer.Kind(doc.Kind),
		Service:       doc.Service,
		Method:        doc.Method,
		Attributes:    doc.Attributes,
		StartTime:     doc.StartTime,
		EndTime:       doc.EndTime,
		StatusCode:    codes.Code(doc.StatusCode),
		StatusMessage: doc.StatusMessage,
	}
}

func ensureIndexes(ctx context.Context, coll collection) error {
	models := []mongodriver.IndexModel{
		{Keys: bson.D{{Key: "trace_id", Value: 1}}},
		{Keys: bson.D{{Key: "resource_id", Value: 1}}},
	}
	_, err := coll.Indexes().CreateMany(ctx, models)
	return err
}

// Ping reports whether the backing MongoDB connection is alive.
func (s *Store) Ping(ctx context.Context, client *mongodriver.Client) error {
	if client == nil {
		return fmt.Errorf("mongo client is required")
	}
	return client.Ping(ctx, readpref.Primary())
}

type collection interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error)
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error)
	Indexes() indexView
}

type indexView interface {
	CreateMany(ctx context.Context, models []mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) ([]string, error)
}

type cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document, opts...)
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return mongoCursor{cur: cur}, nil
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoCursor struct {
	cur *mongodriver.Cursor
}

func (c mongoCursor) Next(ctx context.Context) bool   { return c.cur.Next(ctx) }
func (c mongoCursor) Decode(val any) error            { return c.cur.Decode(val) }
func (c mongoCursor) Err() error                      { return c.cur.Err() }
func (c mongoCursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateMany(ctx context.Context, models []mongodriver.IndexModel, opts ...options.Lister[options.CreateIndexesOptions]) ([]string, error) {
	return v.view.CreateMany(ctx, models, opts...)
}
