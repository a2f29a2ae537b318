package rdma

// DeviceMetrics captures device-level verbs telemetry. A nil DeviceMetrics
// on Config disables instrumentation entirely; every call site nil-checks
// before invoking a hook.
type DeviceMetrics interface {
	ResourceCreated(kind string)
	ResourceDestroyed(kind string)
	SendPosted(opcode string)
	RecvPosted()
	CompletionPolled(status string)
}

func (d *Device) metricResourceCreated(kind string) {
	if d == nil || d.metrics == nil {
		return
	}
	d.metrics.ResourceCreated(kind)
}

func (d *Device) metricResourceDestroyed(kind string) {
	if d == nil || d.metrics == nil {
		return
	}
	d.metrics.ResourceDestroyed(kind)
}

func (d *Device) metricSendPosted(opcode string) {
	if d == nil || d.metrics == nil {
		return
	}
	d.metrics.SendPosted(opcode)
}

func (d *Device) metricRecvPosted() {
	if d == nil || d.metrics == nil {
		return
	}
	d.metrics.RecvPosted()
}

func (d *Device) metricCompletionPolled(status string) {
	if d == nil || d.metrics == nil {
		return
	}
	d.metrics.CompletionPolled(status)
}
