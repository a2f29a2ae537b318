package control

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ Tracer = (*OTelTracer)(nil)

// OTelTracer implements Tracer by wrapping an OpenTelemetry trace.Tracer.
type OTelTracer struct {
	tracer trace.Tracer
}

// OTelTracerOptions configures NewOTelTracer.
type OTelTracerOptions struct {
	TracerProvider         trace.TracerProvider
	InstrumentationName    string
	InstrumentationVersion string
}

// NewOTelTracer builds a Tracer backed by an OpenTelemetry TracerProvider.
func NewOTelTracer(opts OTelTracerOptions) *OTelTracer {
	provider := opts.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	name := opts.InstrumentationName
	if name == "" {
		name = "github.com/example/rnicsim/control"
	}
	tracer := provider.Tracer(name, trace.WithInstrumentationVersion(opts.InstrumentationVersion))
	return &OTelTracer{tracer: tracer}
}

// StartSpan starts an OpenTelemetry span named name with attrs attached.
func (t *OTelTracer) StartSpan(name string, attrs ...TraceAttribute) Span {
	if t == nil || t.tracer == nil {
		return nil
	}
	_, span := t.tracer.Start(context.Background(), name, trace.WithAttributes(toAttributes(attrs)...))
	return &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End(err error) {
	if s == nil || s.span == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
	}
	s.span.End()
}

func (s *otelSpan) AddEvent(name string, attrs ...TraceAttribute) {
	if s == nil || s.span == nil {
		return
	}
	s.span.AddEvent(name, trace.WithAttributes(toAttributes(attrs)...))
}

func (s *otelSpan) RecordError(err error) {
	if s == nil || s.span == nil || err == nil {
		return
	}
	s.span.RecordError(err)
}

func toAttributes(attrs []TraceAttribute) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		kvs = append(kvs, toAttribute(attr))
	}
	return kvs
}

func toAttribute(attr TraceAttribute) attribute.KeyValue {
	if attr.Key == "" {
		return attribute.String("undefined", fmt.Sprint(attr.Value))
	}
	switch v := attr.Value.(type) {
	case nil:
		return attribute.String(attr.Key, "")
	case string:
		return attribute.String(attr.Key, v)
	case fmt.Stringer:
		return attribute.String(attr.Key, v.String())
	case bool:
		return attribute.Bool(attr.Key, v)
	case int:
		return attribute.Int(attr.Key, v)
	case int64:
		return attribute.Int64(attr.Key, v)
	case uint32:
		return attribute.Int64(attr.Key, int64(v))
	case uint64:
		return attribute.Int64(attr.Key, int64(v))
	case float64:
		return attribute.Float64(attr.Key, v)
	case error:
		return attribute.String(attr.Key, v.Error())
	default:
		return attribute.String(attr.Key, fmt.Sprint(attr.Value))
	}
}
