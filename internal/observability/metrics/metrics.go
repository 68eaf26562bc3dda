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

// Metrics exposes billing pipeline instruments. A nil *Metrics is valid and records nothing.
type Metrics struct {
	invoicesGenerated   metric.Int64Counter
	invoiceFailures     metric.Int64Counter
	invoiceLines        metric.Int64Counter
	readingsRecorded    metric.Int64Counter
	readingsRejected    metric.Int64Counter
	tariffConflicts     metric.Int64Counter
	configRejections    metric.Int64Counter
	generationDurations metric.Float64Histogram
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
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// New configures the billing instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "utilitybill"
	}
	meter := provider.Meter(name)

	var (
		m   Metrics
		err error
	)
	if m.invoicesGenerated, err = meter.Int64Counter("utilitybill_invoices_generated_total"); err != nil {
		return nil, err
	}
	if m.invoiceFailures, err = meter.Int64Counter("utilitybill_invoice_generation_failures_total"); err != nil {
		return nil, err
	}
	if m.invoiceLines, err = meter.Int64Counter("utilitybill_invoice_lines_total"); err != nil {
		return nil, err
	}
	if m.readingsRecorded, err = meter.Int64Counter("utilitybill_meter_readings_recorded_total"); err != nil {
		return nil, err
	}
	if m.readingsRejected, err = meter.Int64Counter("utilitybill_meter_readings_rejected_total"); err != nil {
		return nil, err
	}
	if m.tariffConflicts, err = meter.Int64Counter("utilitybill_tariff_resolution_conflicts_total"); err != nil {
		return nil, err
	}
	if m.configRejections, err = meter.Int64Counter("utilitybill_service_configuration_rejections_total"); err != nil {
		return nil, err
	}
	if m.generationDurations, err = meter.Float64Histogram(
		"utilitybill_invoice_generation_seconds",
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewNoop returns instruments backed by the noop provider.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordInvoiceGenerated(ctx context.Context, lines int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.invoicesGenerated.Add(ctx, 1)
	m.invoiceLines.Add(ctx, int64(lines))
	m.generationDurations.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("outcome", "success")))
}

func (m *Metrics) RecordInvoiceFailed(ctx context.Context, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.invoiceFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.generationDurations.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("outcome", "failure")))
}

func (m *Metrics) RecordReadingRecorded(ctx context.Context, meterType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("meter_type", strings.TrimSpace(meterType)))
	m.readingsRecorded.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordReadingRejected(ctx context.Context, rule string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("rule", strings.TrimSpace(rule)))
	m.readingsRejected.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordTariffConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.tariffConflicts.Add(ctx, 1)
}

func (m *Metrics) RecordConfigurationRejected(ctx context.Context, check string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("check", strings.TrimSpace(check)))
	m.configRejections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
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

// Tenant and entity identifiers are deliberately absent to keep series counts bounded.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"reason":     {},
	"rule":       {},
	"check":      {},
	"meter_type": {},
	"outcome":    {},
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
