package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/atomantic/SparseTree-sub004/internal/provider"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

const fetchScopeName = "github.com/atomantic/SparseTree-sub004/provider"

// InstrumentedFetcher wraps a provider.Fetcher with OTel tracing and
// metrics. Every fetch gets a span and is counted in st.provider.*
// metrics, broken down by source and outcome. Use WrapFetcher; it
// returns the original fetcher unchanged when telemetry is disabled.
type InstrumentedFetcher struct {
	inner   provider.Fetcher
	tracer  trace.Tracer
	fetches metric.Int64Counter
	dur     metric.Float64Histogram
}

// WrapFetcher returns f decorated with OTel instrumentation.
// When telemetry is disabled, f is returned as-is with zero overhead.
func WrapFetcher(f provider.Fetcher) provider.Fetcher {
	if !Enabled() {
		return f
	}
	m := Meter(fetchScopeName)
	fetches, _ := m.Int64Counter("st.provider.fetches",
		metric.WithDescription("Total provider record fetches"),
	)
	dur, _ := m.Float64Histogram("st.provider.fetch.duration",
		metric.WithDescription("Provider fetch duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &InstrumentedFetcher{
		inner:   f,
		tracer:  Tracer(fetchScopeName),
		fetches: fetches,
		dur:     dur,
	}
}

func (f *InstrumentedFetcher) Fetch(ctx context.Context, source types.Source, externalID string) ([]byte, error) {
	attrs := []attribute.KeyValue{
		attribute.String("st.source", string(source)),
		attribute.String("st.external_id", externalID),
	}
	ctx, span := f.tracer.Start(ctx, "provider.Fetch",
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	start := time.Now()

	raw, err := f.inner.Fetch(ctx, source, externalID)

	outcome := attribute.String("st.outcome", fetchOutcome(err))
	f.fetches.Add(ctx, 1, metric.WithAttributes(attrs[0], outcome))
	f.dur.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attrs[0], outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	return raw, err
}

func fetchOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var pe *provider.Error
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	return "error"
}

// JobMetrics records job run outcomes. Instruments resolve against the
// globally installed meter provider, so with telemetry off every call
// is a no-op.
type JobMetrics struct {
	runs metric.Int64Counter
	dur  metric.Float64Histogram
}

// NewJobMetrics returns a job-run recorder.
func NewJobMetrics() *JobMetrics {
	m := Meter(instrumentationScope)
	runs, _ := m.Int64Counter("st.job.runs",
		metric.WithDescription("Total background job runs by kind and outcome"),
	)
	dur, _ := m.Float64Histogram("st.job.duration",
		metric.WithDescription("Job run duration in seconds"),
		metric.WithUnit("s"),
	)
	return &JobMetrics{runs: runs, dur: dur}
}

// Record counts one finished job run.
func (m *JobMetrics) Record(ctx context.Context, kind types.JobKind, elapsed time.Duration, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, context.Canceled):
		outcome = "cancelled"
	case err != nil:
		outcome = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("st.job.kind", string(kind)),
		attribute.String("st.outcome", outcome),
	)
	m.runs.Add(ctx, 1, attrs)
	m.dur.Record(ctx, elapsed.Seconds(), attrs)
}
