package llmgateway

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc/metadata"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/rpc"
	"github.com/forwardimpact/monorepo-sub001/internal/telemetry"
	"github.com/forwardimpact/monorepo-sub001/internal/tracer"
	"github.com/forwardimpact/monorepo-sub001/internal/vectorindex"
)

// ServiceName is the RPC registry name this gateway registers under.
const ServiceName = "LLM"

// Gateway selects a provider per request and forwards
// CreateCompletions/CreateEmbeddings calls to it. It is itself a
// tracer client of whichever provider it forwards to: outbound calls
// are wrapped in CLIENT-kind spans with service_name "llm-gateway" so
// a trace spanning an agent's call through the gateway to the
// provider is reconstructable end to end.
type Gateway struct {
	completionProviders map[Provider]CompletionProvider
	embeddingProviders  map[Provider]EmbeddingProvider
	defaultProvider     Provider
	collector           tracer.Collector
	logger              telemetry.Logger
}

// New builds a Gateway. defaultProvider is used when a request omits
// its provider field.
func New(defaultProvider Provider, collector tracer.Collector, logger telemetry.Logger) *Gateway {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Gateway{
		completionProviders: make(map[Provider]CompletionProvider),
		embeddingProviders:  make(map[Provider]EmbeddingProvider),
		defaultProvider:     defaultProvider,
		collector:           collector,
		logger:              logger,
	}
}

// RegisterCompletionProvider wires p to serve completions for name.
func (g *Gateway) RegisterCompletionProvider(name Provider, p CompletionProvider) {
	g.completionProviders[name] = p
}

// RegisterEmbeddingProvider wires p to serve embeddings for name.
func (g *Gateway) RegisterEmbeddingProvider(name Provider, p EmbeddingProvider) {
	g.embeddingProviders[name] = p
}

func (g *Gateway) resolveProvider(requested Provider) Provider {
	if requested != "" {
		return requested
	}
	return g.defaultProvider
}

// CreateCompletions validates the request's tool schemas and resolves
// a provider under an INTERNAL span, then forwards to the provider
// wrapped in a nested CLIENT span, returning the normalized
// completion.
func (g *Gateway) CreateCompletions(ctx context.Context, req CompletionRequest) (Completion, error) {
	ctx, provider, name, err := g.prepareCompletion(ctx, req)
	if err != nil {
		return Completion{}, err
	}

	result, err := tracer.ObserveClientUnaryCall(ctx, "llm-gateway", "CreateCompletions", "", g.collector,
		func(ctx context.Context, _ metadata.MD) (any, error) {
			return provider.Complete(ctx, req)
		})
	if err != nil {
		g.logger.Warn(ctx, "completion request failed", "provider", name, "error", err.Error())
		return Completion{}, err
	}
	return result.(Completion), nil
}

// prepareCompletion validates req's tool schemas and resolves its
// provider under an INTERNAL span, so that the CLIENT span around the
// provider call that follows is recorded as its child. Returns the
// span-bearing context for the caller to continue with.
func (g *Gateway) prepareCompletion(ctx context.Context, req CompletionRequest) (context.Context, CompletionProvider, Provider, error) {
	span := tracer.StartInternalSpan(ctx, "llm-gateway", "CreateCompletions.prepare", "", g.collector)
	ctx = tracer.WithSpan(ctx, span)
	defer span.End()

	if err := validateToolSchemas(req.Tools); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ctx, nil, "", err
	}

	name := g.resolveProvider(req.Provider)
	provider, ok := g.completionProviders[name]
	if !ok {
		err := faults.Validationf("llm gateway: no completion provider registered for %q", name)
		span.SetStatus(codes.Error, err.Error())
		return ctx, nil, "", err
	}
	span.SetStatus(codes.Ok, "")
	return ctx, provider, name, nil
}

// CreateEmbeddings resolves a provider under an INTERNAL span, then
// forwards to the provider wrapped in a nested CLIENT span, and
// returns unit-normalized vectors.
func (g *Gateway) CreateEmbeddings(ctx context.Context, req EmbeddingRequest) (EmbeddingResult, error) {
	span := tracer.StartInternalSpan(ctx, "llm-gateway", "CreateEmbeddings.prepare", "", g.collector)
	ctx = tracer.WithSpan(ctx, span)

	name := g.resolveProvider(req.Provider)
	provider, ok := g.embeddingProviders[name]
	if !ok {
		err := faults.Validationf("llm gateway: no embedding provider registered for %q", name)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return EmbeddingResult{}, err
	}
	span.SetStatus(codes.Ok, "")
	span.End()

	result, err := tracer.ObserveClientUnaryCall(ctx, "llm-gateway", "CreateEmbeddings", "", g.collector,
		func(ctx context.Context, _ metadata.MD) (any, error) {
			return provider.Embed(ctx, req)
		})
	if err != nil {
		g.logger.Warn(ctx, "embedding request failed", "provider", name, "error", err.Error())
		return EmbeddingResult{}, err
	}

	out := result.(EmbeddingResult)
	for i, v := range out.Vectors {
		out.Vectors[i] = vectorindex.Normalize(v)
	}
	return out, nil
}

// ServiceDefinition builds the RPC registry entry exposing
// CreateCompletions/CreateEmbeddings as unary methods, decoding the
// incoming request map into the typed request structs.
func (g *Gateway) ServiceDefinition() *rpc.ServiceDefinition {
	return &rpc.ServiceDefinition{
		Name: ServiceName,
		Unary: map[string]rpc.UnaryHandler{
			"CreateCompletions": func(ctx context.Context, request map[string]any) (any, error) {
				var req CompletionRequest
				if err := decodeRequest(request, &req); err != nil {
					return nil, err
				}
				return g.CreateCompletions(ctx, req)
			},
			"CreateEmbeddings": func(ctx context.Context, request map[string]any) (any, error) {
				var req EmbeddingRequest
				if err := decodeRequest(request, &req); err != nil {
					return nil, err
				}
				return g.CreateEmbeddings(ctx, req)
			},
		},
	}
}

func decodeRequest(m map[string]any, out any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return faults.Validationf("llm gateway: encode request: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return faults.Validationf("llm gateway: decode request: %v", err)
	}
	return nil
}
