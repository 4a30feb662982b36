package rpc

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/telemetry"
	"github.com/forwardimpact/monorepo-sub001/internal/tracer"
)

const shutdownMethod = "Shutdown"

var serverKeepalive = keepalive.ServerParameters{
	Time:    30 * time.Second,
	Timeout: 10 * time.Second,
}

var serverEnforcement = keepalive.EnforcementPolicy{
	MinTime:             10 * time.Second,
	PermitWithoutStream: true,
}

// Server hosts every service registered in a Registry behind a single
// grpc.Server, using the JSON codec instead of compiled protobuf
// stubs, HMAC auth, and span observation on every call.
type Server struct {
	registry   *Registry
	auth       *Authenticator
	collector  tracer.Collector
	logger     telemetry.Logger
	grpcServer *grpc.Server
}

// NewServer builds a Server. auth and collector may both be nil, in
// which case auth is skipped and no spans are recorded (the latter is
// required for the trace collector service itself).
func NewServer(registry *Registry, auth *Authenticator, collector tracer.Collector, logger telemetry.Logger) *Server {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	s := &Server{registry: registry, auth: auth, collector: collector, logger: logger}

	var unary []grpc.UnaryServerInterceptor
	var stream []grpc.StreamServerInterceptor
	if auth != nil {
		unary = append(unary, auth.UnaryServerInterceptor())
		stream = append(stream, auth.StreamServerInterceptor())
	}
	unary = append(unary, s.tracingUnaryInterceptor())
	stream = append(stream, s.tracingStreamInterceptor())

	s.grpcServer = grpc.NewServer(
		grpc.KeepaliveParams(serverKeepalive),
		grpc.KeepaliveEnforcementPolicy(serverEnforcement),
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
	)
	return s
}

func (s *Server) tracingUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if s.collector == nil {
			return handler(ctx, req)
		}
		service, method := splitFullMethod(info.FullMethod)
		md, _ := metadata.FromIncomingContext(ctx)
		resourceID := requestResourceID(req)
		return tracer.ObserveServerUnaryCall(ctx, service, method, resourceID, req, md, s.collector,
			func(ctx context.Context, request any) (any, error) {
				return handler(ctx, request)
			})
	}
}

func (s *Server) tracingStreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if s.collector == nil {
			return handler(srv, ss)
		}
		service, method := splitFullMethod(info.FullMethod)
		md, _ := metadata.FromIncomingContext(ss.Context())
		return tracer.ObserveServerStreamingCall(ss.Context(), service, method, "", md, s.collector,
			func(ctx context.Context) error {
				return handler(srv, ss)
			})
	}
}

func requestResourceID(req any) string {
	m, ok := req.(map[string]any)
	if !ok {
		return ""
	}
	id, _ := m["resource_id"].(string)
	return id
}

func splitFullMethod(fullMethod string) (service, method string) {
	for i := 1; i < len(fullMethod); i++ {
		if fullMethod[i] == '/' {
			return fullMethod[1:i], fullMethod[i+1:]
		}
	}
	return fullMethod, ""
}

// GRPCServer exposes the underlying grpc.Server, primarily so tests
// can drive Serve/Stop directly against a listener of their choosing.
func (s *Server) GRPCServer() *grpc.Server { return s.grpcServer }

// Register builds a dynamic grpc.ServiceDesc from def and adds it to
// the underlying grpc.Server.
func (s *Server) Register(def *ServiceDefinition) {
	s.registry.Register(def)
	desc := buildServiceDesc(def)
	s.grpcServer.RegisterService(&desc, def)
}

func buildServiceDesc(def *ServiceDefinition) grpc.ServiceDesc {
	desc := grpc.ServiceDesc{
		ServiceName: capitalize(def.Name),
		HandlerType: (*any)(nil),
	}
	for name, h := range def.Unary {
		desc.Methods = append(desc.Methods, unaryMethodDesc(def.Name, name, h))
	}
	for name, h := range def.Streaming {
		desc.Streams = append(desc.Streams, streamDesc(name, h))
	}
	return desc
}

func unaryMethodDesc(serviceName, methodName string, h UnaryHandler) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: methodName,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			var req map[string]any
			if err := dec(&req); err != nil {
				return nil, err
			}
			if req == nil {
				return nil, faults.Validationf("%s.%s: request is required", serviceName, methodName)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + capitalize(serviceName) + "/" + methodName}
			wrapped := func(ctx context.Context, req any) (any, error) {
				m, _ := req.(map[string]any)
				return h(ctx, m)
			}
			if interceptor != nil {
				return interceptor(ctx, req, info, wrapped)
			}
			return wrapped(ctx, req)
		},
	}
}

func streamDesc(methodName string, h StreamHandler) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName: methodName,
		Handler: func(srv any, ss grpc.ServerStream) error {
			return h(ss.Context(), &serverStream{ss})
		},
		ServerStreams: true,
		ClientStreams: true,
	}
}

type serverStream struct {
	grpc.ServerStream
}

func (s *serverStream) Recv(v any) error         { return s.ServerStream.RecvMsg(v) }
func (s *serverStream) Send(v any) error         { return s.ServerStream.SendMsg(v) }
func (s *serverStream) Context() context.Context { return s.ServerStream.Context() }

// Serve listens on addr and blocks until ctx is done or a SIGINT/
// SIGTERM is received, at which point it invokes every registered
// service's Shutdown unary method (if any) before gracefully stopping
// the gRPC server.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen on %q: %w", addr, err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logger.Info(ctx, "rpc server listening", "addr", addr)
		errc <- s.grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.runShutdownHooks(context.Background())
		s.logger.Info(context.Background(), "rpc server shutting down", "addr", addr)
		s.grpcServer.GracefulStop()
		wg.Wait()
		return nil
	case err := <-errc:
		return err
	}
}

func (s *Server) runShutdownHooks(ctx context.Context) {
	for name, def := range s.registry.snapshot() {
		handler, ok := def.Unary[shutdownMethod]
		if !ok {
			continue
		}
		if _, err := handler(ctx, nil); err != nil {
			s.logger.Warn(ctx, "service shutdown hook failed", "service", name, "error", err.Error())
		}
	}
}
