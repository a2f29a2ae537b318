package control

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestOTelMetricsCounters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewOTelMetrics(OTelMetricsOptions{MeterProvider: provider})
	if err != nil {
		t.Fatalf("NewOTelMetrics: %v", err)
	}

	attrs := map[string]string{labelNode: "node0", labelService: "demo"}
	metrics.DialStarted(attrs)
	metrics.DialSucceeded(attrs)
	metrics.DialFailed(errors.New("boom"), attrs)
	metrics.AcceptStarted(attrs)
	metrics.AcceptSucceeded(attrs)
	metrics.AcceptFailed(errors.New("boom"), attrs)
	metrics.FrameRejected("length_out_of_range", attrs)

	ctx := context.Background()
	if err := provider.ForceFlush(ctx); err != nil {
		t.Fatalf("ForceFlush: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	cases := map[string]float64{
		"rnicsim.control.dial.started":     1,
		"rnicsim.control.dial.succeeded":   1,
		"rnicsim.control.dial.failed":      1,
		"rnicsim.control.accept.started":   1,
		"rnicsim.control.accept.succeeded": 1,
		"rnicsim.control.accept.failed":    1,
		"rnicsim.control.frame.rejected":   1,
	}
	for name, want := range cases {
		if got := otelCounterValue(rm, name); got != want {
			t.Fatalf("unexpected counter %s: got %v want %v", name, got, want)
		}
	}

	if err := provider.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func otelCounterValue(rm metricdata.ResourceMetrics, name string) float64 {
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name != name {
				continue
			}
			switch data := metric.Data.(type) {
			case metricdata.Sum[int64]:
				var sum float64
				for _, dp := range data.DataPoints {
					sum += float64(dp.Value)
				}
				return sum
			}
		}
	}
	return 0
}
