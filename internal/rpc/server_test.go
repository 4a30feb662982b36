package rpc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/rpc"
)

func startTestServer(t *testing.T, def *rpc.ServiceDefinition) (addr string, stop func()) {
	t.Helper()

	auth, err := rpc.NewAuthenticator(testSecret, "Agent", time.Minute)
	require.NoError(t, err)

	srv := rpc.NewServer(rpc.NewRegistry(), auth, nil, nil)
	srv.Register(def)

	lis, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)

	go func() { _ = srv.GRPCServer().Serve(lis) }()
	return lis.Addr().String(), srv.GRPCServer().Stop
}

func TestClientCallUnaryRoundTrips(t *testing.T) {
	def := &rpc.ServiceDefinition{
		Name: "Agent",
		Unary: map[string]rpc.UnaryHandler{
			"Echo": func(ctx context.Context, request map[string]any) (any, error) {
				return map[string]any{"echoed": request["text"]}, nil
			},
		},
	}
	addr, stop := startTestServer(t, def)
	defer stop()

	auth, err := rpc.NewAuthenticator(testSecret, "Agent", time.Minute)
	require.NoError(t, err)

	client, err := rpc.NewClient(context.Background(), addr, "Agent", auth, nil)
	require.NoError(t, err)
	defer client.Close()

	req := map[string]any{"text": "hello"}
	var resp map[string]any
	err = client.CallUnary(context.Background(), "Echo", req, &resp, "")
	require.NoError(t, err)
	require.Equal(t, "hello", resp["echoed"])
}

func TestClientCallUnaryRejectsWithoutValidAuth(t *testing.T) {
	def := &rpc.ServiceDefinition{
		Name: "Agent",
		Unary: map[string]rpc.UnaryHandler{
			"Echo": func(ctx context.Context, request map[string]any) (any, error) {
				return map[string]any{"ok": true}, nil
			},
		},
	}
	addr, stop := startTestServer(t, def)
	defer stop()

	client, err := rpc.NewClient(context.Background(), addr, "Agent", nil, nil)
	require.NoError(t, err)
	defer client.Close()

	var resp map[string]any
	err = client.CallUnary(context.Background(), "Echo", map[string]any{}, &resp, "")
	require.Error(t, err)
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestHandlerFaultsTranslateToMatchingGRPCStatus(t *testing.T) {
	def := &rpc.ServiceDefinition{
		Name: "Agent",
		Unary: map[string]rpc.UnaryHandler{
			"Lookup": func(ctx context.Context, request map[string]any) (any, error) {
				return nil, faults.NotFoundf("resource %v not found", request["id"])
			},
		},
	}
	addr, stop := startTestServer(t, def)
	defer stop()

	auth, err := rpc.NewAuthenticator(testSecret, "Agent", time.Minute)
	require.NoError(t, err)

	client, err := rpc.NewClient(context.Background(), addr, "Agent", auth, nil)
	require.NoError(t, err)
	defer client.Close()

	var resp map[string]any
	err = client.CallUnary(context.Background(), "Lookup", map[string]any{"id": "r1"}, &resp, "")
	require.Error(t, err)
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.NotFound, st.Code())
	require.Contains(t, st.Message(), "r1")
}

func TestClientCallUnaryRejectsAbsentRequest(t *testing.T) {
	def := &rpc.ServiceDefinition{
		Name: "Agent",
		Unary: map[string]rpc.UnaryHandler{
			"Echo": func(ctx context.Context, request map[string]any) (any, error) {
				return map[string]any{"ok": true}, nil
			},
		},
	}
	addr, stop := startTestServer(t, def)
	defer stop()

	auth, err := rpc.NewAuthenticator(testSecret, "Agent", time.Minute)
	require.NoError(t, err)

	client, err := rpc.NewClient(context.Background(), addr, "Agent", auth, nil)
	require.NoError(t, err)
	defer client.Close()

	var resp map[string]any
	err = client.CallUnary(context.Background(), "Echo", nil, &resp, "")
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}
