// Command trace-collector runs the trace collector service: a
// MongoDB-backed sink for spans recorded by every other service's
// tracer client.
//
// # Configuration
//
// Environment variables:
//
//	TRACE_COLLECTOR_ADDR  - gRPC listen address (default: "0.0.0.0:3004")
//	MONGO_URI             - MongoDB connection string (default: "mongodb://localhost:27017")
//	MONGO_DATABASE        - MongoDB database name (default: "fit")
//	STORAGE_ROOT          - local filesystem root used to locate config/config.json (default: "./data")
//	SERVICE_SECRET        - shared HMAC secret for inter-service auth, at least 32 characters
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"goa.design/clue/log"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/forwardimpact/monorepo-sub001/internal/config"
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
	cfg, err := config.Load("fit", "trace-collector", filepath.Join(storageRoot, "config"), map[string]any{
		"port": 3004,
	}, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	secret := os.Getenv("SERVICE_SECRET")
	if secret == "" {
		return fmt.Errorf("SERVICE_SECRET is required")
	}
	auth, err := rpc.NewAuthenticator(secret, "trace-collector", 0)
	if err != nil {
		return fmt.Errorf("build authenticator: %w", err)
	}

	mongoURI := envOr("MONGO_URI", "mongodb://localhost:27017")
	mongoDatabase := envOr("MONGO_DATABASE", "fit")
	client, err := mongodriver.Connect(options.Client().ApplyURI(mongoURI))
	if err != nil {
		return fmt.Errorf("connect to mongo: %w", err)
	}
	defer func() {
		if cerr := client.Disconnect(context.Background()); cerr != nil {
			logger.Warn(ctx, "disconnect from mongo failed", "error", cerr.Error())
		}
	}()

	store, err := tracecollector.New(tracecollector.Options{
		Client:   client,
		Database: mongoDatabase,
	})
	if err != nil {
		return fmt.Errorf("build trace store: %w", err)
	}

	// The trace collector's own server must not be wired with a
	// tracer.Collector: it would record a span about recording a span.
	registry := rpc.NewRegistry()
	svc := tracecollector.NewService(store, logger)
	server := rpc.NewServer(registry, auth, nil, logger)
	server.Register(svc.ServiceDefinition())

	addr := envOr("TRACE_COLLECTOR_ADDR", fmt.Sprintf("%s:%d", cfg.Host(), cfg.Port()))
	logger.Info(ctx, "trace collector listening", "addr", addr, "database", mongoDatabase)
	return server.Serve(ctx, addr)
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
