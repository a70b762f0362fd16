package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cortexlog/cortexlog/pkg/syncer"
)

// SetSyncSpanAttributes records standard sync result attributes on a span.
func SetSyncSpanAttributes(span trace.Span, result syncer.Result) {
	span.SetAttributes(
		attribute.Int("cortexlog.sync.sessions_discovered", result.SessionsDiscovered),
		attribute.Int("cortexlog.sync.sessions_processed", result.SessionsProcessed),
		attribute.Int("cortexlog.sync.sessions_skipped", result.SessionsSkipped),
		attribute.Int("cortexlog.sync.messages_inserted", result.MessagesInserted),
		attribute.Int("cortexlog.sync.errors", len(result.Errors)),
		attribute.Bool("cortexlog.sync.aborted", result.Aborted),
		attribute.Int64("cortexlog.sync.duration_ms", result.DurationMS),
	)
}

// RecordSyncMetrics records all telemetry counters/histograms for a sync run.
// This is a no-op when telemetry is disabled.
func RecordSyncMetrics(ctx context.Context, result syncer.Result) {
	if !metricsEnabled {
		return
	}
	attrs := buildMetricAttrs()

	if result.SessionsProcessed > 0 {
		sessionsProcessed.Add(ctx, int64(result.SessionsProcessed), metric.WithAttributes(attrs...))
	}
	if result.SessionsSkipped > 0 {
		sessionsSkipped.Add(ctx, int64(result.SessionsSkipped), metric.WithAttributes(attrs...))
	}
	if len(result.Errors) > 0 {
		sessionsErrored.Add(ctx, int64(len(result.Errors)), metric.WithAttributes(attrs...))
	}
	if result.MessagesInserted > 0 {
		messagesInserted.Add(ctx, int64(result.MessagesInserted), metric.WithAttributes(attrs...))
	}
	syncDuration.Record(ctx, time.Duration(result.DurationMS*int64(time.Millisecond)).Seconds(), metric.WithAttributes(attrs...))
}

// RecordToolUsesInserted increments the tool-use insertion counter. It is
// separate from RecordSyncMetrics because syncer.Result carries no tool-use
// count; neither the syncer nor the sync command calls it.
func RecordToolUsesInserted(ctx context.Context, count int) {
	if !metricsEnabled || count <= 0 {
		return
	}
	toolUsesInserted.Add(ctx, int64(count), metric.WithAttributes(buildMetricAttrs()...))
}

// RecordSearchMetrics records telemetry for one search query.
func RecordSearchMetrics(ctx context.Context, resultCount int, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	attrs := buildMetricAttrs()
	searchQueries.Add(ctx, 1, metric.WithAttributes(attrs...))
	searchResults.Add(ctx, int64(resultCount), metric.WithAttributes(attrs...))
	searchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
