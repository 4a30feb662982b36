package rpc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/rpc"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewAuthenticatorRejectsShortSecret(t *testing.T) {
	_, err := rpc.NewAuthenticator("too-short", "Agent", time.Minute)
	require.Error(t, err)
	fe, ok := faults.As(err)
	require.True(t, ok)
	require.Equal(t, faults.Validation, fe.Kind)
}

func TestClientInterceptorSignsAndServerInterceptorVerifies(t *testing.T) {
	a, err := rpc.NewAuthenticator(testSecret, "Agent", time.Minute)
	require.NoError(t, err)

	var capturedMD metadata.MD
	clientInterceptor := a.UnaryClientInterceptor()
	invoker := func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, opts ...grpc.CallOption) error {
		capturedMD, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}
	err = clientInterceptor(context.Background(), "/Agent/Process", nil, nil, nil, invoker)
	require.NoError(t, err)
	require.NotEmpty(t, capturedMD.Get("authorization"))

	serverInterceptor := a.UnaryServerInterceptor()
	incoming := metadata.NewIncomingContext(context.Background(), capturedMD)
	info := &grpc.UnaryServerInfo{FullMethod: "/Agent/Process"}
	resp, err := serverInterceptor(incoming, "req", info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", resp)
}

func TestServerInterceptorRejectsMissingToken(t *testing.T) {
	a, err := rpc.NewAuthenticator(testSecret, "Agent", time.Minute)
	require.NoError(t, err)

	serverInterceptor := a.UnaryServerInterceptor()
	incoming := metadata.NewIncomingContext(context.Background(), metadata.MD{})
	info := &grpc.UnaryServerInfo{FullMethod: "/Agent/Process"}
	_, err = serverInterceptor(incoming, "req", info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	require.Error(t, err)
	fe, ok := faults.As(err)
	require.True(t, ok)
	require.Equal(t, faults.Unauthenticated, fe.Kind)
}

func TestServerInterceptorRejectsTamperedToken(t *testing.T) {
	a, err := rpc.NewAuthenticator(testSecret, "Agent", time.Minute)
	require.NoError(t, err)

	md := metadata.MD{}
	md.Set("authorization", "Bearer not-a-valid-token")
	serverInterceptor := a.UnaryServerInterceptor()
	incoming := metadata.NewIncomingContext(context.Background(), md)
	info := &grpc.UnaryServerInfo{FullMethod: "/Agent/Process"}
	_, err = serverInterceptor(incoming, "req", info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	require.Error(t, err)
}
