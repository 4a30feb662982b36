package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/forwardimpact/monorepo-sub001/internal/telemetry"
)

func TestNoopLoggerDoesNotPanic(t *testing.T) {
	l := telemetry.NewNoopLogger()
	ctx := context.Background()
	l.Debug(ctx, "debug", "k", "v")
	l.Info(ctx, "info")
	l.Warn(ctx, "warn", "k")
	l.Error(ctx, "error", "k", "v", "k2", "v2")
}

func TestNoopMetricsDoesNotPanic(t *testing.T) {
	m := telemetry.NewNoopMetrics()
	m.IncCounter("requests", 1, "route", "/x")
	m.RecordTimer("latency", time.Millisecond, "route", "/x")
	m.RecordGauge("queue_depth", 3)
}
