package control

import "go.uber.org/zap"

// Logger provides structured debug logging hooks for the handshake.
type Logger interface {
	Debugf(format string, args ...any)
}

// StructuredLogger emits key/value pairs for structured logging backends.
type StructuredLogger interface {
	Debugw(msg string, keyvals ...any)
}

// TraceAttribute is a tracing attribute attached to handshake spans or events.
type TraceAttribute struct {
	Key   string
	Value any
}

// Tracer starts spans that wrap one connection attempt.
type Tracer interface {
	StartSpan(name string, attrs ...TraceAttribute) Span
}

// Span records handshake lifecycle, events, and errors for tracing systems.
type Span interface {
	End(err error)
	AddEvent(name string, attrs ...TraceAttribute)
	RecordError(err error)
}

// zapLogger adapts *zap.SugaredLogger to Logger and StructuredLogger.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps base as both a Logger and a StructuredLogger.
func NewZapLogger(base *zap.Logger) *zapLogger {
	return &zapLogger{sugar: base.Sugar()}
}

func (z *zapLogger) Debugf(format string, args ...any) {
	z.sugar.Debugf(format, args...)
}

func (z *zapLogger) Debugw(msg string, keyvals ...any) {
	z.sugar.Debugw(msg, keyvals...)
}

type logField struct {
	key   string
	value any
}

func logKV(key string, value any) logField {
	return logField{key: key, value: value}
}

// attributesFromFields converts logFields into TraceAttributes for a span.
func attributesFromFields(fields ...logField) []TraceAttribute {
	attrs := make([]TraceAttribute, 0, len(fields))
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		attrs = append(attrs, TraceAttribute{Key: field.key, Value: field.value})
	}
	return attrs
}

// spanAddEvent is a nil-safe wrapper around Span.AddEvent.
func spanAddEvent(span Span, name string, fields ...logField) {
	if span == nil {
		return
	}
	span.AddEvent(name, attributesFromFields(fields...)...)
}

// spanRecordError is a nil-safe wrapper around Span.RecordError.
func spanRecordError(span Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
}

// startSpan is a nil-safe wrapper around Tracer.StartSpan.
func startSpan(tracer Tracer, name string, fields ...logField) Span {
	if tracer == nil {
		return nil
	}
	return tracer.StartSpan(name, attributesFromFields(fields...)...)
}

// endSpan is a nil-safe wrapper around Span.End.
func endSpan(span Span, err error) {
	if span == nil {
		return
	}
	span.End(err)
}
