package control

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsOptions configures NewOTelMetrics.
type OTelMetricsOptions struct {
	MeterProvider          metric.MeterProvider
	Meter                  metric.Meter
	InstrumentationName    string
	InstrumentationVersion string
}

var _ MetricHook = (*OTelMetrics)(nil)

// OTelMetrics implements MetricHook using OpenTelemetry counters.
type OTelMetrics struct {
	meter           metric.Meter
	dialStarted     metric.Int64Counter
	dialSucceeded   metric.Int64Counter
	dialFailed      metric.Int64Counter
	acceptStarted   metric.Int64Counter
	acceptSucceeded metric.Int64Counter
	acceptFailed    metric.Int64Counter
	frameRejected   metric.Int64Counter
}

// NewOTelMetrics constructs a MetricHook that emits OpenTelemetry counter measurements.
func NewOTelMetrics(opts OTelMetricsOptions) (*OTelMetrics, error) {
	meter := opts.Meter
	if meter == nil {
		provider := opts.MeterProvider
		if provider == nil {
			provider = otel.GetMeterProvider()
		}
		name := opts.InstrumentationName
		if name == "" {
			name = "github.com/example/rnicsim/control"
		}
		meter = provider.Meter(name, metric.WithInstrumentationVersion(opts.InstrumentationVersion))
	}

	dialStarted, err := meter.Int64Counter("rnicsim.control.dial.started")
	if err != nil {
		return nil, err
	}
	dialSucceeded, err := meter.Int64Counter("rnicsim.control.dial.succeeded")
	if err != nil {
		return nil, err
	}
	dialFailed, err := meter.Int64Counter("rnicsim.control.dial.failed")
	if err != nil {
		return nil, err
	}
	acceptStarted, err := meter.Int64Counter("rnicsim.control.accept.started")
	if err != nil {
		return nil, err
	}
	acceptSucceeded, err := meter.Int64Counter("rnicsim.control.accept.succeeded")
	if err != nil {
		return nil, err
	}
	acceptFailed, err := meter.Int64Counter("rnicsim.control.accept.failed")
	if err != nil {
		return nil, err
	}
	frameRejected, err := meter.Int64Counter("rnicsim.control.frame.rejected")
	if err != nil {
		return nil, err
	}

	return &OTelMetrics{
		meter:           meter,
		dialStarted:     dialStarted,
		dialSucceeded:   dialSucceeded,
		dialFailed:      dialFailed,
		acceptStarted:   acceptStarted,
		acceptSucceeded: acceptSucceeded,
		acceptFailed:    acceptFailed,
		frameRejected:   frameRejected,
	}, nil
}

func (o *OTelMetrics) DialStarted(attrs map[string]string) {
	o.dialStarted.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

func (o *OTelMetrics) DialSucceeded(attrs map[string]string) {
	o.dialSucceeded.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

func (o *OTelMetrics) DialFailed(_ error, attrs map[string]string) {
	o.dialFailed.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

func (o *OTelMetrics) AcceptStarted(attrs map[string]string) {
	o.acceptStarted.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

func (o *OTelMetrics) AcceptSucceeded(attrs map[string]string) {
	o.acceptSucceeded.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

func (o *OTelMetrics) AcceptFailed(_ error, attrs map[string]string) {
	o.acceptFailed.Add(context.Background(), 1, metric.WithAttributes(otelAttrs(attrs)...))
}

func (o *OTelMetrics) FrameRejected(reason string, attrs map[string]string) {
	attributes := append(otelAttrs(attrs), attribute.String(labelReason, reason))
	o.frameRejected.Add(context.Background(), 1, metric.WithAttributes(attributes...))
}

func otelAttrs(attrs map[string]string) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, 2)
	if v := attrs[labelNode]; v != "" {
		kvs = append(kvs, attribute.String(labelNode, v))
	}
	if v := attrs[labelService]; v != "" {
		kvs = append(kvs, attribute.String(labelService, v))
	}
	return kvs
}
