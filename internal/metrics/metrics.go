package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the service instruments. A nil *Metrics records nothing.
type Metrics struct {
	HTTPRequests      metric.Int64Counter
	HTTPDuration      metric.Float64Histogram
	CacheHits         metric.Int64Counter
	CacheMisses       metric.Int64Counter
	TransactionsBuilt metric.Int64Counter
	UpstreamCalls     metric.Int64Counter
	UpstreamDuration  metric.Float64Histogram
}

func Setup(serviceName string) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	m, err := New(provider.Meter(serviceName))
	if err != nil {
		return nil, nil, err
	}

	handler := promhttp.Handler()
	return m, handler, nil
}

// New registers the service instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	var err error
	m := &Metrics{}

	m.HTTPRequests, err = meter.Int64Counter(
		"blinks_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"blinks_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter(
		"blinks_cache_hits_total",
		metric.WithDescription("Total number of cache hits"),
	)
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter(
		"blinks_cache_misses_total",
		metric.WithDescription("Total number of cache misses"),
	)
	if err != nil {
		return nil, err
	}

	m.TransactionsBuilt, err = meter.Int64Counter(
		"blinks_transactions_built_total",
		metric.WithDescription("Unsigned transactions returned, by action"),
	)
	if err != nil {
		return nil, err
	}

	m.UpstreamCalls, err = meter.Int64Counter(
		"blinks_upstream_calls_total",
		metric.WithDescription("Calls to external services, by service and outcome"),
	)
	if err != nil {
		return nil, err
	}

	m.UpstreamDuration, err = meter.Float64Histogram(
		"blinks_upstream_duration_seconds",
		metric.WithDescription("External service call duration in seconds"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labels := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status", status),
	)

	m.HTTPRequests.Add(ctx, 1, labels)
	m.HTTPDuration.Record(ctx, duration.Seconds(), labels)
}

// RecordCacheHit counts a hit in keyspace, a key prefix such as "blk:collection".
func (m *Metrics) RecordCacheHit(ctx context.Context, keyspace string) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("keyspace", keyspace)))
}

func (m *Metrics) RecordCacheMiss(ctx context.Context, keyspace string) {
	if m == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("keyspace", keyspace)))
}

func (m *Metrics) RecordTransactionBuilt(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.TransactionsBuilt.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// RecordUpstreamCall counts one call to service; err decides the outcome label.
func (m *Metrics) RecordUpstreamCall(ctx context.Context, service string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	labels := metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("outcome", outcome),
	)
	m.UpstreamCalls.Add(ctx, 1, labels)
	m.UpstreamDuration.Record(ctx, duration.Seconds(), labels)
}
