package telemetry

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestDefault(t *testing.T) {
	tel, err := New(context.Background(), Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tel.Tracer == nil || tel.Meter == nil || tel.Instrument == nil {
		t.Fatalf("incomplete telemetry: %+v", tel)
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestAbortShutsDownStartedProviders(t *testing.T) {
	var stopped []string
	tel := &Telemetry{shutdown: []func(context.Context) error{
		func(context.Context) error { stopped = append(stopped, "metrics"); return nil },
		func(context.Context) error { stopped = append(stopped, "traces"); return errors.New("flush failed") },
	}}
	cause := errors.New("no trace exporter")

	err := tel.abort(context.Background(), cause)
	if !errors.Is(err, cause) {
		t.Errorf("abort() error = %v, want it to wrap %v", err, cause)
	}
	if err == nil || err.Error() == cause.Error() {
		t.Errorf("abort() error = %v, want the shutdown failure joined", err)
	}
	if len(stopped) != 2 {
		t.Errorf("stopped = %v, want both providers", stopped)
	}
}

func TestInstrumentRecords(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(ctx) })

	inst, err := NewInstrument(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewInstrument() error = %v", err)
	}
	inst.ReductionRecord(ctx, 12.5, "reduced_0", 7)
	inst.ReductionRecord(ctx, 3, "reduced_1", 3)
	inst.ElectrotonicLengthRecord(ctx, 0.8, false)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	if sums["dendroreduce.reductions"] != 2 {
		t.Errorf("reductions = %d, want 2", sums["dendroreduce.reductions"])
	}
	if sums["dendroreduce.bisection.unconverged"] != 1 {
		t.Errorf("unconverged = %d, want 1", sums["dendroreduce.bisection.unconverged"])
	}
}
