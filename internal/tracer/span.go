// Package tracer implements the distributed tracer: Span creation, an
// implicit per-execution "current span" propagated through
// context.Context, and cross-process propagation via gRPC metadata
// headers x-trace-id/x-span-id/x-resource-id.
package tracer

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
)

// Kind distinguishes a span's role in an RPC.
type Kind string

const (
	Server   Kind = "SERVER"
	Client   Kind = "CLIENT"
	Internal Kind = "INTERNAL"
)

// Event is a timestamped annotation recorded on a Span.
type Event struct {
	Name       string
	Time       time.Time
	Attributes map[string]any
}

// Collector receives finalized spans. The trace collector service
// client implements this at wiring time; the trace collector service
// itself must not be given a Collector, to avoid recursive tracing.
type Collector interface {
	RecordSpan(span *Span) error
}

// Span is one traced unit of work.
type Span struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	ResourceID   string
	Kind         Kind
	Service      string
	Method       string
	Attributes   map[string]any

	StartTime time.Time
	EndTime   time.Time

	StatusCode    codes.Code
	StatusMessage string

	mu        sync.Mutex
	events    []Event
	ended     bool
	collector Collector
}

// AddEvent records a timestamped event on the span.
func (s *Span) AddEvent(name string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Event{Name: name, Time: time.Now(), Attributes: attrs})
}

// Events returns a copy of the span's recorded events.
func (s *Span) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// SetStatus sets the span's outcome. The last call before End wins.
func (s *Span) SetStatus(code codes.Code, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StatusCode = code
	s.StatusMessage = message
}

// End finalizes the span exactly once: records the end time and
// enqueues the span to the configured Collector. Second and later
// calls are no-ops.
func (s *Span) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.EndTime = time.Now()
	collector := s.collector
	s.mu.Unlock()

	if collector != nil {
		_ = collector.RecordSpan(s)
	}
}

// Ended reports whether End has already run.
func (s *Span) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}
