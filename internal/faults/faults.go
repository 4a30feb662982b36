// Package faults implements the error taxonomy shared by every
// service: NotFound, Validation, Unauthenticated, AccessDenied,
// Conflict, Transient, Cancelled, Internal.
package faults

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind enumerates the conceptual error categories.
type Kind string

const (
	NotFound        Kind = "not_found"
	Validation      Kind = "validation"
	Unauthenticated Kind = "unauthenticated"
	AccessDenied    Kind = "access_denied"
	Conflict        Kind = "conflict"
	Transient       Kind = "transient"
	Cancelled       Kind = "cancelled"
	Internal        Kind = "internal"
)

// grpcCode maps each Kind to the outbound gRPC status code an RPC
// handler must translate it to.
var grpcCode = map[Kind]codes.Code{
	NotFound:        codes.NotFound,
	Validation:      codes.InvalidArgument,
	Unauthenticated: codes.Unauthenticated,
	AccessDenied:    codes.PermissionDenied,
	Conflict:        codes.AlreadyExists,
	Transient:       codes.Unavailable,
	Cancelled:       codes.Canceled,
	Internal:        codes.Internal,
}

// Error wraps an underlying cause with a Kind, trace-context fields
// attached by RPC handlers (trace_id/span_id/service_name — see
// tracer.Observe*), and the text message preserved verbatim across
// the boundary.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	TraceID     string
	SpanID      string
	ServiceName string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Code returns the gRPC status code a server handler should respond
// with for this error.
func (e *Error) Code() codes.Code {
	if c, ok := grpcCode[e.Kind]; ok {
		return c
	}
	return codes.Internal
}

// Retryable reports whether retries may act on this error. Only
// Transient is retry-eligible.
func (e *Error) Retryable() bool { return e.Kind == Transient }

// GRPCStatus implements the interface grpc-go's status.FromError looks
// for, so any handler returning an *Error is translated to its mapped
// status code and message without the RPC layer having to know about
// the Kind taxonomy.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Code(), e.Message)
}

// WithTrace returns a copy of e enriched with trace context
// (trace_id/span_id/service_name) for inclusion in the outbound
// status.
func (e *Error) WithTrace(traceID, spanID, serviceName string) *Error {
	cp := *e
	cp.TraceID, cp.SpanID, cp.ServiceName = traceID, spanID, serviceName
	return &cp
}

func new_(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a NotFound error (key or identifier absent).
func NotFoundf(format string, args ...any) *Error { return new_(NotFound, format, args...) }

// Validationf builds a Validation error (malformed request, bad
// identifier encoding, graph-query parse failure, ...).
func Validationf(format string, args ...any) *Error { return new_(Validation, format, args...) }

// Unauthenticatedf builds an Unauthenticated error (missing/invalid/
// expired HMAC or JWT).
func Unauthenticatedf(format string, args ...any) *Error {
	return new_(Unauthenticated, format, args...)
}

// AccessDeniedf builds an AccessDenied error (policy rejected a
// resource read).
func AccessDeniedf(format string, args ...any) *Error { return new_(AccessDenied, format, args...) }

// Conflictf builds a Conflict error (e.g. bucket already exists).
func Conflictf(format string, args ...any) *Error { return new_(Conflict, format, args...) }

// Transientf builds a Transient, retry-eligible error (network
// failure, 429, 5xx, UNAVAILABLE).
func Transientf(format string, args ...any) *Error { return new_(Transient, format, args...) }

// Cancelledf builds a Cancelled error (deadline or upstream cancel).
func Cancelledf(format string, args ...any) *Error { return new_(Cancelled, format, args...) }

// Internalf builds an Internal error wrapping cause, if any.
func Internalf(cause error, format string, args ...any) *Error {
	e := new_(Internal, format, args...)
	e.Cause = cause
	return e
}

// As is a thin convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) a *Error,
// otherwise Internal.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return Internal
}
