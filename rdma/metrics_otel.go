package rdma

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelDeviceMetricsOptions configures NewOTelDeviceMetrics.
type OTelDeviceMetricsOptions struct {
	MeterProvider          metric.MeterProvider
	Meter                  metric.Meter
	InstrumentationName    string
	InstrumentationVersion string
}

var _ DeviceMetrics = (*OTelDeviceMetrics)(nil)

// OTelDeviceMetrics implements DeviceMetrics using OpenTelemetry counters.
type OTelDeviceMetrics struct {
	resourceCreated   metric.Int64Counter
	resourceDestroyed metric.Int64Counter
	sendPosted        metric.Int64Counter
	recvPosted        metric.Int64Counter
	completionPolled  metric.Int64Counter
}

// NewOTelDeviceMetrics constructs a DeviceMetrics that emits OpenTelemetry counter measurements.
func NewOTelDeviceMetrics(opts OTelDeviceMetricsOptions) (*OTelDeviceMetrics, error) {
	meter := opts.Meter
	if meter == nil {
		provider := opts.MeterProvider
		if provider == nil {
			provider = otel.GetMeterProvider()
		}
		name := opts.InstrumentationName
		if name == "" {
			name = "github.com/example/rnicsim/rdma"
		}
		meter = provider.Meter(name, metric.WithInstrumentationVersion(opts.InstrumentationVersion))
	}

	resourceCreated, err := meter.Int64Counter("rnicsim.device.resources_created")
	if err != nil {
		return nil, err
	}
	resourceDestroyed, err := meter.Int64Counter("rnicsim.device.resources_destroyed")
	if err != nil {
		return nil, err
	}
	sendPosted, err := meter.Int64Counter("rnicsim.device.send_posted")
	if err != nil {
		return nil, err
	}
	recvPosted, err := meter.Int64Counter("rnicsim.device.recv_posted")
	if err != nil {
		return nil, err
	}
	completionPolled, err := meter.Int64Counter("rnicsim.device.completions_polled")
	if err != nil {
		return nil, err
	}

	return &OTelDeviceMetrics{
		resourceCreated:   resourceCreated,
		resourceDestroyed: resourceDestroyed,
		sendPosted:        sendPosted,
		recvPosted:        recvPosted,
		completionPolled:  completionPolled,
	}, nil
}

func (o *OTelDeviceMetrics) ResourceCreated(kind string) {
	o.resourceCreated.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (o *OTelDeviceMetrics) ResourceDestroyed(kind string) {
	o.resourceDestroyed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (o *OTelDeviceMetrics) SendPosted(opcode string) {
	o.sendPosted.Add(context.Background(), 1, metric.WithAttributes(attribute.String("opcode", opcode)))
}

func (o *OTelDeviceMetrics) RecvPosted() {
	o.recvPosted.Add(context.Background(), 1)
}

func (o *OTelDeviceMetrics) CompletionPolled(status string) {
	o.completionPolled.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}
