package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelMetrics records counters, timers (as histograms), and gauges
// (also as histograms, since OTEL has no synchronous gauge
// instrument) through an OTEL meter, exported to Prometheus via the
// sdk/metric bridge so existing Prometheus scrape tooling keeps
// working unchanged.
type OTelMetrics struct {
	meter metric.Meter
}

// NewOTelMetrics constructs a meter named serviceName on the given
// MeterProvider (typically configured by NewPrometheusProvider at
// process startup).
func NewOTelMetrics(provider metric.MeterProvider, serviceName string) Metrics {
	return &OTelMetrics{meter: provider.Meter(serviceName)}
}

// NewPrometheusProvider builds an OTEL MeterProvider whose metrics are
// exposed via the standard Prometheus /metrics HTTP handler. handler
// is returned for the caller to mount on its HTTP mux.
func NewPrometheusProvider() (*sdkmetric.MeterProvider, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	return provider, promhttp.Handler(), nil
}

func (m *OTelMetrics) IncCounter(name string, value float64, tags ...string) {
	counter, err := m.meter.Float64Counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

func (m *OTelMetrics) RecordTimer(name string, duration time.Duration, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name)
	if err != nil {
		return
	}
	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagAttrs(tags)...))
}

func (m *OTelMetrics) RecordGauge(name string, value float64, tags ...string) {
	histogram, err := m.meter.Float64Histogram(name + "_gauge")
	if err != nil {
		return
	}
	histogram.Record(context.Background(), value, metric.WithAttributes(tagAttrs(tags)...))
}

// tagAttrs converts "key", "value" pairs into OTEL attributes,
// skipping a trailing unpaired tag.
func tagAttrs(tags []string) []attribute.KeyValue {
	var out []attribute.KeyValue
	for i := 0; i+1 < len(tags); i += 2 {
		out = append(out, attribute.String(tags[i], tags[i+1]))
	}
	return out
}
