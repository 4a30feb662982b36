package rpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/tracer"
)

const (
	maxRetryAttempts = 10
	retryBaseDelay   = 1 * time.Second
)

var clientKeepalive = keepalive.ClientParameters{
	Time:                30 * time.Second,
	Timeout:             10 * time.Second,
	PermitWithoutStream: true,
}

// serviceDNSName derives the well-known DNS name a service is
// reachable at from its name, used to resolve the placeholder host
// 0.0.0.0 in a configured address into something a client can
// actually dial.
func serviceDNSName(serviceName string) string {
	return fmt.Sprintf("%s.internal", strings.ToLower(serviceName))
}

// resolveAddr substitutes a leading 0.0.0.0 host in addr with
// serviceName's well-known DNS name, leaving the port untouched.
func resolveAddr(addr, serviceName string) string {
	if !strings.HasPrefix(addr, "0.0.0.0:") {
		return addr
	}
	return serviceDNSName(serviceName) + strings.TrimPrefix(addr, "0.0.0.0")
}

// Client dials a single remote service and issues unary/streaming
// calls against it with HMAC auth, span propagation, and bounded
// exponential-backoff retry on transient failures.
type Client struct {
	conn        *grpc.ClientConn
	serviceName string
	collector   tracer.Collector
	limiter     *rate.Limiter
}

// NewClient dials addr (after 0.0.0.0 host substitution) for calls
// against serviceName. auth and collector may be nil.
func NewClient(ctx context.Context, addr, serviceName string, auth *Authenticator, collector tracer.Collector) (*Client, error) {
	target := resolveAddr(addr, serviceName)

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(clientKeepalive),
	}
	if auth != nil {
		opts = append(opts, grpc.WithChainUnaryInterceptor(auth.UnaryClientInterceptor()))
		opts = append(opts, grpc.WithChainStreamInterceptor(auth.StreamClientInterceptor()))
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %q: %w", target, err)
	}

	return &Client{
		conn:        conn,
		serviceName: serviceName,
		collector:   collector,
		limiter:     rate.NewLimiter(rate.Every(retryBaseDelay), 1),
	}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// CallUnary invokes method on the remote service with request,
// decoding the JSON response into response (a pointer). The call is
// observed with a CLIENT span and attempted up to maxRetryAttempts
// times in all, with exponential backoff between attempts, while the
// failures are retryable.
func (c *Client) CallUnary(ctx context.Context, method string, request, response any, requestResourceID string) error {
	_, err := tracer.ObserveClientUnaryCall(ctx, c.serviceName, method, requestResourceID, c.collector,
		func(ctx context.Context, md metadata.MD) (any, error) {
			return nil, c.invokeWithRetry(ctx, method, md, func(ctx context.Context) error {
				return c.conn.Invoke(ctx, "/"+capitalize(c.serviceName)+"/"+method, request, response,
					grpc.CallContentSubtype(jsonCodecName))
			})
		})
	return err
}

func (c *Client) invokeWithRetry(ctx context.Context, method string, md metadata.MD, call func(ctx context.Context) error) error {
	outgoing := metadata.NewOutgoingContext(ctx, md)

	var lastErr error
	for attempt := 0; attempt < maxRetryAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<uint(attempt-1)) * retryBaseDelay
			if err := c.waitBackoff(ctx, delay); err != nil {
				return err
			}
		}

		lastErr = call(outgoing)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("rpc: %s: exhausted %d attempts: %w", method, maxRetryAttempts, lastErr)
}

func (c *Client) waitBackoff(ctx context.Context, delay time.Duration) error {
	reservation := c.limiter.ReserveN(time.Now(), 1)
	wait := reservation.Delay()
	if delay > wait {
		wait = delay
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryable reports whether err is eligible for client-side retry:
// transient faults.Error values, and the gRPC codes Unavailable and
// ResourceExhausted (which also cover an upstream 429).
func retryable(err error) bool {
	if fe, ok := faults.As(err); ok {
		return fe.Retryable()
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// CallStream opens a bidi stream for method and hands it to use for
// the caller to drive Send/Recv; the call is observed with a CLIENT
// span spanning the full stream lifetime.
func (c *Client) CallStream(ctx context.Context, method string, requestResourceID string, use func(ctx context.Context, stream grpc.ClientStream) error) error {
	return tracer.ObserveClientStreamingCall(ctx, c.serviceName, method, requestResourceID, c.collector,
		func(ctx context.Context, md metadata.MD) error {
			outgoing := metadata.NewOutgoingContext(ctx, md)
			desc := &grpc.StreamDesc{StreamName: method, ServerStreams: true, ClientStreams: true}
			stream, err := c.conn.NewStream(outgoing, desc, "/"+capitalize(c.serviceName)+"/"+method,
				grpc.CallContentSubtype(jsonCodecName))
			if err != nil {
				return err
			}
			return use(outgoing, stream)
		})
}
