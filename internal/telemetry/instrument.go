package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Instrument struct {
	ReductionCounter            metric.Int64Counter
	ReductionDurationHistogram  metric.Float64Histogram
	ElectrotonicLengthHistogram metric.Float64Histogram
	BisectionFailureCounter     metric.Int64Counter
}

func NewInstrument(meter metric.Meter) (*Instrument, error) {
	reductionCounter, err := meter.Int64Counter(
		"dendroreduce.reductions",
		metric.WithDescription("Number of subtrees reduced"),
	)
	if err != nil {
		return nil, err
	}

	reductionDurationHistogram, err := meter.Float64Histogram(
		"dendroreduce.reduction.duration",
		metric.WithDescription("Duration of subtree reductions"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	electrotonicLengthHistogram, err := meter.Float64Histogram(
		"dendroreduce.electrotonic_length",
		metric.WithDescription("Electrotonic length of equivalent cylinders"),
	)
	if err != nil {
		return nil, err
	}

	bisectionFailureCounter, err := meter.Int64Counter(
		"dendroreduce.bisection.unconverged",
		metric.WithDescription("Bisections that exhausted their iteration budget"),
	)
	if err != nil {
		return nil, err
	}

	return &Instrument{
		ReductionCounter:            reductionCounter,
		ReductionDurationHistogram:  reductionDurationHistogram,
		ElectrotonicLengthHistogram: electrotonicLengthHistogram,
		BisectionFailureCounter:     bisectionFailureCounter,
	}, nil
}

func (r *Instrument) ReductionRecord(ctx context.Context, durationMs float64, domain string, nseg int) {
	attrs := metric.WithAttributes(
		attribute.String("reduce.domain", domain),
		attribute.Int("reduce.nseg", nseg),
	)
	r.ReductionCounter.Add(ctx, 1, attrs)
	r.ReductionDurationHistogram.Record(ctx, durationMs, attrs)
}

func (r *Instrument) ElectrotonicLengthRecord(ctx context.Context, length float64, converged bool) {
	r.ElectrotonicLengthHistogram.Record(
		ctx,
		length,
		metric.WithAttributes(attribute.Bool("bisect.converged", converged)),
	)
	if !converged {
		r.BisectionFailureCounter.Add(ctx, 1)
	}
}
