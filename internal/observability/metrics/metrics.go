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

// Metrics exposes admission-flow instruments.
type Metrics struct {
	applications         metric.Int64Counter
	votes                metric.Int64Counter
	approvals            metric.Int64Counter
	expired              metric.Int64Counter
	notificationFailures metric.Int64Counter
	rateLimitAllowed     metric.Int64Counter
	rateLimitDenied      metric.Int64Counter
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
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(defaultString(cfg.ServiceName, "inspira"))

	var (
		m   Metrics
		err error
	)
	counters := []struct {
		name string
		dst  *metric.Int64Counter
	}{
		{"inspira_applications_submitted_total", &m.applications},
		{"inspira_votes_total", &m.votes},
		{"inspira_applications_approved_total", &m.approvals},
		{"inspira_applications_expired_total", &m.expired},
		{"inspira_notification_failures_total", &m.notificationFailures},
		{"inspira_rate_limit_allowed_total", &m.rateLimitAllowed},
		{"inspira_rate_limit_denied_total", &m.rateLimitDenied},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// NewNoop returns instruments bound to a no-op provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordApplicationSubmitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.applications.Add(ctx, 1)
}

// RecordVote counts accepted votes by type.
func (m *Metrics) RecordVote(ctx context.Context, voteType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("vote_type", strings.TrimSpace(voteType)))
	m.votes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordApproval counts approvals by trigger (vote or manual).
func (m *Metrics) RecordApproval(ctx context.Context, trigger string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("trigger", strings.TrimSpace(trigger)))
	m.approvals.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordExpired(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.expired.Add(ctx, int64(count))
}

// RecordNotificationFailure counts notification inserts that were swallowed.
func (m *Metrics) RecordNotificationFailure(ctx context.Context, notificationType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("notification_type", strings.TrimSpace(notificationType)))
	m.notificationFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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

// User and group identifiers are never metric labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":          {},
	"status_code":       {},
	"vote_type":         {},
	"trigger":           {},
	"notification_type": {},
	"reason":            {},
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
