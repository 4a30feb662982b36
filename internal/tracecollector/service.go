package tracecollector

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/rpc"
	"github.com/forwardimpact/monorepo-sub001/internal/telemetry"
	"github.com/forwardimpact/monorepo-sub001/internal/tracer"
)

// ServiceName is the RPC registry name the trace collector registers
// under.
const ServiceName = "Trace"

// WireEvent is the over-the-wire form of a tracer.Event.
type WireEvent struct {
	Name       string         `json:"name"`
	Time       time.Time      `json:"time"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// WireSpan is the over-the-wire form of a tracer.Span. tracer.Span
// keeps its event log and collector reference unexported, so a
// RecordSpan call crossing an RPC boundary carries this instead of
// the domain type directly.
type WireSpan struct {
	TraceID       string         `json:"trace_id"`
	SpanID        string         `json:"span_id"`
	ParentSpanID  string         `json:"parent_span_id,omitempty"`
	ResourceID    string         `json:"resource_id,omitempty"`
	Kind          string         `json:"kind"`
	Service       string         `json:"service"`
	Method        string         `json:"method"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Events        []WireEvent    `json:"events,omitempty"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       time.Time      `json:"end_time"`
	StatusCode    uint32         `json:"status_code"`
	StatusMessage string         `json:"status_message,omitempty"`
}

// ToWireSpan captures span's exported fields and event log into a
// WireSpan suitable for RecordSpan.
func ToWireSpan(span *tracer.Span) WireSpan {
	events := span.Events()
	wireEvents := make([]WireEvent, 0, len(events))
	for _, e := range events {
		wireEvents = append(wireEvents, WireEvent{Name: e.Name, Time: e.Time, Attributes: e.Attributes})
	}
	return WireSpan{
		TraceID:       span.TraceID,
		SpanID:        span.SpanID,
		ParentSpanID:  span.ParentSpanID,
		ResourceID:    span.ResourceID,
		Kind:          string(span.Kind),
		Service:       span.Service,
		Method:        span.Method,
		Attributes:    span.Attributes,
		Events:        wireEvents,
		StartTime:     span.StartTime,
		EndTime:       span.EndTime,
		StatusCode:    uint32(span.StatusCode),
		StatusMessage: span.StatusMessage,
	}
}

func (w WireSpan) toSpan() *tracer.Span {
	return &tracer.Span{
		TraceID:       w.TraceID,
		SpanID:        w.SpanID,
		ParentSpanID:  w.ParentSpanID,
		ResourceID:    w.ResourceID,
		Kind:          tracer.Kind(w.Kind),
		Service:       w.Service,
		Method:        w.Method,
		Attributes:    w.Attributes,
		StartTime:     w.StartTime,
		EndTime:       w.EndTime,
		StatusCode:    codes.Code(w.StatusCode),
		StatusMessage: w.StatusMessage,
	}
}

func (w WireSpan) toEventDocuments() []eventDocument {
	docs := make([]eventDocument, 0, len(w.Events))
	for _, e := range w.Events {
		docs = append(docs, eventDocument{Name: e.Name, Time: e.Time, Attributes: e.Attributes})
	}
	return docs
}

// Service exposes a Store as an RPC service. Its ServiceDefinition
// must be hosted on an rpc.Server built with a nil tracer.Collector:
// recording spans about the call that records spans is not useful and
// would recurse indefinitely through RecordSpan itself.
type Service struct {
	store  *Store
	logger telemetry.Logger
}

// NewService builds a Service around store.
func NewService(store *Store, logger telemetry.Logger) *Service {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Service{store: store, logger: logger}
}

// RecordSpan appends span to the store. A failure is logged and
// returned to the RPC caller; RemoteCollector discards that error, so
// a failed recording never fails the traced request itself.
func (s *Service) RecordSpan(ctx context.Context, span WireSpan) error {
	if err := s.store.recordWireSpan(span); err != nil {
		s.logger.Warn(ctx, "record span failed", "trace_id", span.TraceID, "span_id", span.SpanID, "error", err.Error())
		return err
	}
	return nil
}

// QuerySpans delegates to the store.
func (s *Service) QuerySpans(ctx context.Context, query Query) ([]*tracer.Span, error) {
	spans, err := s.store.QuerySpans(ctx, query)
	if err != nil {
		s.logger.Warn(ctx, "query spans failed", "trace_id", query.TraceID, "resource_id", query.ResourceID, "error", err.Error())
		return nil, err
	}
	return spans, nil
}

type recordSpanRequest struct {
	Span *WireSpan `json:"span"`
}

type querySpansRequest struct {
	TraceID    string `json:"trace_id"`
	ResourceID string `json:"resource_id"`
	Limit      int    `json:"limit"`
}

type querySpansResponse struct {
	Spans []*tracer.Span `json:"spans"`
}

// ServiceDefinition builds the RPC registry entry exposing
// RecordSpan/QuerySpans as unary methods, decoding the incoming
// request map into the typed request structs.
func (s *Service) ServiceDefinition() *rpc.ServiceDefinition {
	return &rpc.ServiceDefinition{
		Name: ServiceName,
		Unary: map[string]rpc.UnaryHandler{
			"RecordSpan": func(ctx context.Context, request map[string]any) (any, error) {
				var req recordSpanRequest
				if err := decodeRequest(request, &req); err != nil {
					return nil, err
				}
				if req.Span == nil {
					return nil, faults.Validationf("trace collector: span is required")
				}
				if err := s.RecordSpan(ctx, *req.Span); err != nil {
					return nil, err
				}
				return struct{}{}, nil
			},
			"QuerySpans": func(ctx context.Context, request map[string]any) (any, error) {
				var req querySpansRequest
				if err := decodeRequest(request, &req); err != nil {
					return nil, err
				}
				spans, err := s.QuerySpans(ctx, Query{TraceID: req.TraceID, ResourceID: req.ResourceID, Limit: req.Limit})
				if err != nil {
					return nil, err
				}
				return querySpansResponse{Spans: spans}, nil
			},
		},
	}
}

func decodeRequest(m map[string]any, out any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return faults.Validationf("trace collector: encode request: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return faults.Validationf("trace collector: decode request: %v", err)
	}
	return nil
}
