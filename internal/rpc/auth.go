package rpc

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
)

const (
	minSecretLen    = 32
	defaultLifetime = 60 * time.Second
)

// Authenticator implements the shared-secret HMAC scheme paired
// client/server interceptors use: the signer computes
// HMAC-SHA256(secret, "<service_id>:<timestamp_ms>") and the verifier
// recomputes and constant-time-compares it.
type Authenticator struct {
	secret    []byte
	serviceID string
	lifetime  time.Duration
}

// NewAuthenticator validates secret (must be at least 32 characters)
// at construction time and returns an Authenticator that signs
// outgoing calls as serviceID. lifetime defaults to 60s if zero or
// negative.
func NewAuthenticator(secret, serviceID string, lifetime time.Duration) (*Authenticator, error) {
	if len(secret) < minSecretLen {
		return nil, faults.Validationf("service secret must be at least %d characters", minSecretLen)
	}
	if lifetime <= 0 {
		lifetime = defaultLifetime
	}
	return &Authenticator{secret: []byte(secret), serviceID: serviceID, lifetime: lifetime}, nil
}

func (a *Authenticator) sign(now time.Time) string {
	ts := now.UnixMilli()
	sig := a.hmacHex(a.serviceID, ts)
	raw := fmt.Sprintf("%s:%d:%s", a.serviceID, ts, sig)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func (a *Authenticator) hmacHex(serviceID string, timestampMs int64) string {
	mac := hmac.New(sha256.New, a.secret)
	fmt.Fprintf(mac, "%s:%d", serviceID, timestampMs)
	return hex.EncodeToString(mac.Sum(nil))
}

// verify decodes token, rejects it if older than the configured
// lifetime, recomputes the signature, and constant-time-compares it.
func (a *Authenticator) verify(token string, now time.Time) error {
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return faults.Unauthenticatedf("malformed auth token")
	}
	parts := strings.SplitN(string(decoded), ":", 3)
	if len(parts) != 3 {
		return faults.Unauthenticatedf("malformed auth token")
	}
	serviceID, tsField, sigField := parts[0], parts[1], parts[2]

	tsMs, err := strconv.ParseInt(tsField, 10, 64)
	if err != nil {
		return faults.Unauthenticatedf("malformed auth token timestamp")
	}
	issued := time.UnixMilli(tsMs)
	if now.Sub(issued) > a.lifetime {
		return faults.Unauthenticatedf("auth token expired")
	}

	expected := a.hmacHex(serviceID, tsMs)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sigField)) != 1 {
		return faults.Unauthenticatedf("auth token signature mismatch")
	}
	return nil
}

const authorizationKey = "authorization"

func bearerToken(md metadata.MD) (string, bool) {
	vals := md.Get(authorizationKey)
	if len(vals) == 0 {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(vals[0], prefix) {
		return "", false
	}
	return strings.TrimPrefix(vals[0], prefix), true
}

// UnaryServerInterceptor verifies the Bearer token attached to every
// incoming unary call, rejecting with Unauthenticated on failure.
func (a *Authenticator) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if err := a.verifyIncoming(ctx); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor is the streaming analogue of
// UnaryServerInterceptor.
func (a *Authenticator) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if err := a.verifyIncoming(ss.Context()); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

func (a *Authenticator) verifyIncoming(ctx context.Context) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return faults.Unauthenticatedf("missing metadata")
	}
	token, ok := bearerToken(md)
	if !ok {
		return faults.Unauthenticatedf("missing bearer token")
	}
	return a.verify(token, time.Now())
}

// UnaryClientInterceptor signs every outgoing unary call.
func (a *Authenticator) UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = a.attachOutgoing(ctx)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor is the streaming analogue of
// UnaryClientInterceptor.
func (a *Authenticator) StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		ctx = a.attachOutgoing(ctx)
		return streamer(ctx, desc, cc, method, opts...)
	}
}

func (a *Authenticator) attachOutgoing(ctx context.Context) context.Context {
	token := a.sign(time.Now())
	return metadata.AppendToOutgoingContext(ctx, authorizationKey, "Bearer "+token)
}
