package control

import "fmt"

// MetricHook captures handshake telemetry events.
type MetricHook interface {
	DialStarted(attrs map[string]string)
	DialSucceeded(attrs map[string]string)
	DialFailed(err error, attrs map[string]string)
	AcceptStarted(attrs map[string]string)
	AcceptSucceeded(attrs map[string]string)
	AcceptFailed(err error, attrs map[string]string)
	FrameRejected(reason string, attrs map[string]string)
}

func metricAttrs(node, service string, fields ...logField) map[string]string {
	attrs := make(map[string]string, len(fields)+2)
	if node != "" {
		attrs["node"] = node
	}
	if service != "" {
		attrs["service"] = service
	}
	for _, field := range fields {
		if field.key == "" {
			continue
		}
		attrs[field.key] = toString(field.value)
	}
	return attrs
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
