// Package telemetry provides OpenTelemetry trace and metric initialization for
// this CLI. It follows an idempotent-init pattern: the first call to Init
// wins, and the disabled path uses the OTel no-op provider (zero overhead, no
// nil checks needed).
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	// defaultEndpoint is the OTLP gRPC collector address used when no
	// endpoint is configured.
	defaultEndpoint = "localhost:4317"

	// metricExportInterval is how often metrics are exported to the collector.
	metricExportInterval = 10 * time.Second
)

// Options configures telemetry initialisation.
type Options struct {
	ServiceName string // OTel service.name resource attribute (default "cortexlog")
	Endpoint    string // OTLP gRPC collector address (default "localhost:4317")
	Enabled     bool   // When false, Init is a no-op and the global no-op provider is used
}

var (
	initOnce       sync.Once
	traceProvider  *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	meter          metric.Meter
	metricsEnabled bool

	sessionsProcessed metric.Int64Counter
	sessionsSkipped   metric.Int64Counter
	sessionsErrored   metric.Int64Counter
	messagesInserted  metric.Int64Counter
	toolUsesInserted  metric.Int64Counter
	syncDuration      metric.Float64Histogram

	searchQueries  metric.Int64Counter
	searchResults  metric.Int64Counter
	searchDuration metric.Float64Histogram

	commonMetricAttrs []attribute.KeyValue
)

// parseResourceAttributes parses OTEL_RESOURCE_ATTRIBUTES into a KeyValue slice.
// Format: "key1=value1,key2=value2"
func parseResourceAttributes() []attribute.KeyValue {
	envVal := os.Getenv("OTEL_RESOURCE_ATTRIBUTES")
	if envVal == "" {
		return nil
	}

	var attrs []attribute.KeyValue
	for _, pair := range strings.Split(envVal, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			key := strings.TrimSpace(kv[0])
			value := strings.TrimSpace(kv[1])
			if key != "" {
				attrs = append(attrs, attribute.String(key, value))
			}
		}
	}
	return attrs
}

// parseEndpoint normalises an OTLP endpoint string into a bare host:port
// suitable for otlptracegrpc.WithEndpoint and a flag indicating whether TLS
// should be disabled.
func parseEndpoint(raw string) (host string, insecure bool) {
	if raw == "" {
		return defaultEndpoint, true
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw, true
	}

	return u.Host, u.Scheme != "https"
}

// Init configures the OTel tracing and metrics subsystem. Thread-safe and
// idempotent — only the first call takes effect. When Enabled is false the
// global no-op provider remains active, so callers can record spans/metrics
// safely with zero overhead.
func Init(ctx context.Context, opts Options) error {
	var initErr error
	initOnce.Do(func() {
		if !opts.Enabled {
			telemetryLogger().Debug("telemetry disabled, using no-op provider")
			return
		}

		serviceName := opts.ServiceName
		if serviceName == "" {
			serviceName = "cortexlog"
		}

		host, insecure := parseEndpoint(opts.Endpoint)

		res, err := resource.New(ctx,
			resource.WithFromEnv(),
			resource.WithTelemetrySDK(),
			resource.WithHost(),
			resource.WithAttributes(attribute.String("service.name", serviceName)),
		)
		if err != nil {
			initErr = fmt.Errorf("create OTel resource: %w", err)
			return
		}

		if err := initTracing(ctx, host, insecure, res); err != nil {
			initErr = err
			return
		}
		if err := initMetrics(ctx, host, insecure, res); err != nil {
			initErr = err
			return
		}

		metricsEnabled = true
		commonMetricAttrs = parseResourceAttributes()

		telemetryLogger().Info("telemetry initialised", "endpoint", host, "insecure", insecure, "serviceName", serviceName)
	})

	return initErr
}

func initTracing(ctx context.Context, host string, insecure bool, res *resource.Resource) error {
	exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(host)}
	if insecure {
		exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
	if err != nil {
		return fmt.Errorf("create OTLP trace exporter: %w", err)
	}

	traceProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(traceProvider)
	return nil
}

func initMetrics(ctx context.Context, host string, insecure bool, res *resource.Resource) error {
	exporterOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(host)}
	if insecure {
		exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
	}

	exporter, err := otlpmetricgrpc.New(ctx, exporterOpts...)
	if err != nil {
		return fmt.Errorf("create OTLP metric exporter: %w", err)
	}

	meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(metricExportInterval))),
	)
	otel.SetMeterProvider(meterProvider)
	meter = meterProvider.Meter("cortexlog")

	return initMetricInstruments()
}

func initMetricInstruments() error {
	var err error

	if sessionsProcessed, err = meter.Int64Counter("cortexlog.sessions.processed",
		metric.WithDescription("Number of sessions extracted and committed"),
		metric.WithUnit("{session}")); err != nil {
		return err
	}
	if sessionsSkipped, err = meter.Int64Counter("cortexlog.sessions.skipped",
		metric.WithDescription("Number of sessions skipped as already up to date"),
		metric.WithUnit("{session}")); err != nil {
		return err
	}
	if sessionsErrored, err = meter.Int64Counter("cortexlog.sessions.errored",
		metric.WithDescription("Number of sessions that failed extraction"),
		metric.WithUnit("{session}")); err != nil {
		return err
	}
	if messagesInserted, err = meter.Int64Counter("cortexlog.messages.inserted",
		metric.WithDescription("Number of messages inserted across all sessions"),
		metric.WithUnit("{message}")); err != nil {
		return err
	}
	if toolUsesInserted, err = meter.Int64Counter("cortexlog.tool_uses.inserted",
		metric.WithDescription("Number of tool use rows inserted across all sessions"),
		metric.WithUnit("{tool_use}")); err != nil {
		return err
	}
	if syncDuration, err = meter.Float64Histogram("cortexlog.sync.duration",
		metric.WithDescription("Sync run duration"),
		metric.WithUnit("s")); err != nil {
		return err
	}
	if searchQueries, err = meter.Int64Counter("cortexlog.search.queries",
		metric.WithDescription("Number of search queries executed"),
		metric.WithUnit("{query}")); err != nil {
		return err
	}
	if searchResults, err = meter.Int64Counter("cortexlog.search.results",
		metric.WithDescription("Number of results returned across all search queries"),
		metric.WithUnit("{result}")); err != nil {
		return err
	}
	if searchDuration, err = meter.Float64Histogram("cortexlog.search.duration",
		metric.WithDescription("Search query duration"),
		metric.WithUnit("s")); err != nil {
		return err
	}

	return nil
}

// Shutdown flushes pending spans/metrics and shuts down both providers. Safe
// to call even when Init was never called or telemetry is disabled.
func Shutdown(ctx context.Context) error {
	var errs []error

	if traceProvider != nil {
		if err := traceProvider.ForceFlush(ctx); err != nil {
			telemetryLogger().Warn("failed to flush trace provider", "error", err)
		}
		if err := traceProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown trace provider: %w", err))
		}
	}

	if meterProvider != nil {
		if err := meterProvider.ForceFlush(ctx); err != nil {
			telemetryLogger().Warn("failed to flush meter provider", "error", err)
		}
		if err := meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ForceFlush explicitly flushes all pending spans and metrics. Call this at
// the end of short-lived commands so data is exported before the process
// exits. Safe to call when telemetry is disabled.
func ForceFlush(ctx context.Context) error {
	var errs []error

	if traceProvider != nil {
		if err := traceProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if meterProvider != nil {
		if err := meterProvider.ForceFlush(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Tracer returns a named tracer from the global provider. When telemetry is
// disabled the returned tracer is a no-op.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Meter returns the meter instance, or the global no-op meter when telemetry
// is disabled.
func Meter() metric.Meter {
	if meter != nil {
		return meter
	}
	return otel.Meter("cortexlog")
}

func buildMetricAttrs(specific ...attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(specific)+len(commonMetricAttrs))
	attrs = append(attrs, specific...)
	attrs = append(attrs, commonMetricAttrs...)
	return attrs
}
