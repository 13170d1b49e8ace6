package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricOpts describes an instrument
type MetricOpts struct {
	Name        string
	Description string
	Unit        string
}

// Counter is a monotonic int64 counter
type Counter struct {
	c metric.Int64Counter
}

// Histogram records float64 distributions
type Histogram struct {
	h metric.Float64Histogram
}

func meter() metric.Meter {
	return otel.Meter(InstrumentationName)
}

// NewCounter creates a counter on the global meter provider
func NewCounter(opts MetricOpts) (*Counter, error) {
	c, err := meter().Int64Counter(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &Counter{c: c}, nil
}

// Inc adds one
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// Add adds n
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.c.Add(ctx, n, metric.WithAttributes(attrs...))
}

// NewHistogramWithBuckets creates a histogram with explicit bucket boundaries
func NewHistogramWithBuckets(opts MetricOpts, buckets []float64) (*Histogram, error) {
	h, err := meter().Float64Histogram(opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if err != nil {
		return nil, err
	}
	return &Histogram{h: h}, nil
}

// Record records one observation
func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	if h == nil {
		return
	}
	h.h.Record(ctx, v, metric.WithAttributes(attrs...))
}
