// Command llm-gateway runs the LLM gateway service: a single RPC
// surface (CreateCompletions, CreateEmbeddings) in front of whichever
// model providers are configured, normalizing their responses and
// tracing every outbound call.
//
// # Configuration
//
// Environment variables:
//
//	LLM_GATEWAY_ADDR      - gRPC listen address (default: "0.0.0.0:3005")
//	TRACE_COLLECTOR_ADDR  - trace collector address spans are forwarded to (default: "0.0.0.0:3004")
//	STORAGE_ROOT          - local filesystem root used to locate config/config.json (default: "./data")
//	SERVICE_SECRET        - shared HMAC secret for inter-service auth, at least 32 characters
//	LLM_TOKEN             - API token for the OpenAI-compatible completion/embedding endpoint
//	LLM_BASE_URL          - base URL of the OpenAI-compatible completion endpoint
//	EMBEDDING_BASE_URL    - base URL of the OpenAI-compatible embedding endpoint
//	ANTHROPIC_API_KEY     - if set, additionally registers Claude as a completion provider
//	AWS_REGION            - if set, additionally registers Bedrock Converse (credentials from the default AWS chain)
//	DEFAULT_LLM_PROVIDER  - provider used when a request omits one: "openai" (default), "anthropic", or "bedrock"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"goa.design/clue/log"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/forwardimpact/monorepo-sub001/internal/config"
	"github.com/forwardimpact/monorepo-sub001/internal/llmgateway"
	"github.com/forwardimpact/monorepo-sub001/internal/rpc"
	"github.com/forwardimpact/monorepo-sub001/internal/telemetry"
	"github.com/forwardimpact/monorepo-sub001/internal/tracecollector"
)

func main() {
	dbgF := flag.Bool("debug", false, "log request and response bodies")
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	if err := run(ctx); err != nil {
		log.Fatal(ctx, err)
	}
}

func run(ctx context.Context) error {
	logger := telemetry.NewClueLogger()

	storageRoot := envOr("STORAGE_ROOT", "./data")
	cfg, err := config.Load("fit", "llm-gateway", filepath.Join(storageRoot, "config"), map[string]any{
		"port": 3005,
	}, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	secret := os.Getenv("SERVICE_SECRET")
	if secret == "" {
		return fmt.Errorf("SERVICE_SECRET is required")
	}
	auth, err := rpc.NewAuthenticator(secret, "llm-gateway", 0)
	if err != nil {
		return fmt.Errorf("build authenticator: %w", err)
	}

	collector, closeCollector, err := dialTraceCollector(ctx, auth)
	if err != nil {
		return err
	}
	defer closeCollector()

	defaultProvider := llmgateway.Provider(envOr("DEFAULT_LLM_PROVIDER", string(llmgateway.OpenAI)))
	gw := llmgateway.New(defaultProvider, collector, logger)
	if err := registerProviders(ctx, gw, cfg, logger); err != nil {
		return err
	}

	registry := rpc.NewRegistry()
	server := rpc.NewServer(registry, auth, collector, logger)
	server.Register(gw.ServiceDefinition())

	addr := envOr("LLM_GATEWAY_ADDR", fmt.Sprintf("%s:%d", cfg.Host(), cfg.Port()))
	logger.Info(ctx, "llm gateway listening", "addr", addr, "default_provider", string(defaultProvider))
	return server.Serve(ctx, addr)
}

// dialTraceCollector wires a RemoteCollector against the trace
// collector service. Every service but the trace collector itself
// traces its calls this way.
func dialTraceCollector(ctx context.Context, auth *rpc.Authenticator) (*tracecollector.RemoteCollector, func(), error) {
	addr := envOr("TRACE_COLLECTOR_ADDR", "0.0.0.0:3004")
	client, err := rpc.NewClient(ctx, addr, tracecollector.ServiceName, auth, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial trace collector: %w", err)
	}
	return tracecollector.NewRemoteCollector(client), func() { _ = client.Close() }, nil
}

// registerProviders wires whichever completion/embedding providers
// have credentials configured. The OpenAI-compatible endpoint is
// treated as the baseline: LLM_TOKEN/LLM_BASE_URL serve completions,
// EMBEDDING_BASE_URL (same token) serves embeddings. Anthropic and
// Bedrock are registered additively when their own credentials are
// present, selectable per request via the provider field.
func registerProviders(ctx context.Context, gw *llmgateway.Gateway, cfg *config.Config, logger telemetry.Logger) error {
	registered := 0

	if token, err := cfg.LLMToken(); err == nil && token != "" {
		opts := []option.RequestOption{option.WithAPIKey(token)}
		if baseURL, err := cfg.LLMBaseURL(); err == nil && baseURL != "" {
			opts = append(opts, option.WithBaseURL(baseURL))
		}
		chatClient := openai.NewClient(opts...)

		embedOpts := opts
		if embedBaseURL, err := cfg.EmbeddingBaseURL(); err == nil && embedBaseURL != "" {
			embedOpts = append([]option.RequestOption{option.WithAPIKey(token), option.WithBaseURL(embedBaseURL)})
		}
		embedClient := openai.NewClient(embedOpts...)

		adapter := llmgateway.NewOpenAIAdapter(&chatClient.Chat.Completions, &embedClient.Embeddings)
		gw.RegisterCompletionProvider(llmgateway.OpenAI, adapter)
		gw.RegisterEmbeddingProvider(llmgateway.OpenAI, adapter)
		registered++
	}

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		gw.RegisterCompletionProvider(llmgateway.Anthropic, llmgateway.NewAnthropicAdapterFromAPIKey(apiKey))
		registered++
	}

	if region := os.Getenv("AWS_REGION"); region != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			logger.Warn(ctx, "bedrock provider not registered", "error", err.Error())
		} else {
			runtime := bedrockruntime.NewFromConfig(awsCfg)
			gw.RegisterCompletionProvider(llmgateway.Bedrock, llmgateway.NewBedrockAdapter(runtime))
			registered++
		}
	}

	if registered == 0 {
		return fmt.Errorf("no completion provider configured: set LLM_TOKEN, ANTHROPIC_API_KEY, or AWS_REGION")
	}
	return nil
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
