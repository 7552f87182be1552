package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	adapterCalls    metric.Int64Counter
	adapterDuration metric.Float64Histogram
	sourceFetches   metric.Int64Counter
	rateLimitWaits  metric.Int64Counter
	rateLimitDenied metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "hmoscout"
	}
	meter := provider.Meter(name)

	adapterCalls, err := meter.Int64Counter("hmoscout_enrichment_adapter_calls_total")
	if err != nil {
		return nil, err
	}
	adapterDuration, err := meter.Float64Histogram("hmoscout_enrichment_adapter_duration_seconds")
	if err != nil {
		return nil, err
	}
	sourceFetches, err := meter.Int64Counter("hmoscout_source_fetches_total")
	if err != nil {
		return nil, err
	}
	rateLimitWaits, err := meter.Int64Counter("hmoscout_rate_limit_waits_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("hmoscout_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		adapterCalls:    adapterCalls,
		adapterDuration: adapterDuration,
		sourceFetches:   sourceFetches,
		rateLimitWaits:  rateLimitWaits,
		rateLimitDenied: rateLimitDenied,
	}, nil
}

// RecordAdapterCall counts one enrichment adapter invocation.
func (m *Metrics) RecordAdapterCall(ctx context.Context, adapter, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("adapter", strings.TrimSpace(adapter)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.adapterCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.adapterDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSourceFetch counts one listing feed fetch.
func (m *Metrics) RecordSourceFetch(ctx context.Context, source, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.sourceFetches.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitWait counts one pacing delay before a provider call.
func (m *Metrics) RecordRateLimitWait(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	m.rateLimitWaits.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied counts one token bucket rejection.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, provider, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"adapter":     {},
	"outcome":     {},
	"source":      {},
	"provider":    {},
	"reason":      {},
	"endpoint":    {},
	"status_code": {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
