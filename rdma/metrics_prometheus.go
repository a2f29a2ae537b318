package rdma

import "github.com/prometheus/client_golang/prometheus"

// PrometheusDeviceMetricsOptions configures NewPrometheusDeviceMetrics.
type PrometheusDeviceMetricsOptions struct {
	Registerer  prometheus.Registerer
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

var _ DeviceMetrics = (*PrometheusDeviceMetrics)(nil)

// PrometheusDeviceMetrics implements DeviceMetrics using Prometheus counters.
type PrometheusDeviceMetrics struct {
	resourceCreated   *prometheus.CounterVec
	resourceDestroyed *prometheus.CounterVec
	sendPosted        *prometheus.CounterVec
	recvPosted        prometheus.Counter
	completionPolled  *prometheus.CounterVec
}

// NewPrometheusDeviceMetrics constructs a DeviceMetrics backed by Prometheus counters.
func NewPrometheusDeviceMetrics(opts PrometheusDeviceMetricsOptions) (*PrometheusDeviceMetrics, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusDeviceMetrics{
		resourceCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rnicsim_device_resources_created_total",
			Help:        "Number of verbs resources created, by kind",
			ConstLabels: opts.ConstLabels,
		}, []string{"kind"}),
		resourceDestroyed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rnicsim_device_resources_destroyed_total",
			Help:        "Number of verbs resources destroyed, by kind",
			ConstLabels: opts.ConstLabels,
		}, []string{"kind"}),
		sendPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rnicsim_device_send_posted_total",
			Help:        "Number of post_send calls, by opcode",
			ConstLabels: opts.ConstLabels,
		}, []string{"opcode"}),
		recvPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rnicsim_device_recv_posted_total",
			Help:        "Number of post_recv calls",
			ConstLabels: opts.ConstLabels,
		}),
		completionPolled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "rnicsim_device_completions_polled_total",
			Help:        "Number of completions returned by poll_cq, by status",
			ConstLabels: opts.ConstLabels,
		}, []string{"status"}),
	}

	var err error
	if p.resourceCreated, err = registerCounterVec(reg, p.resourceCreated); err != nil {
		return nil, err
	}
	if p.resourceDestroyed, err = registerCounterVec(reg, p.resourceDestroyed); err != nil {
		return nil, err
	}
	if p.sendPosted, err = registerCounterVec(reg, p.sendPosted); err != nil {
		return nil, err
	}
	if p.recvPosted, err = registerCounter(reg, p.recvPosted); err != nil {
		return nil, err
	}
	if p.completionPolled, err = registerCounterVec(reg, p.completionPolled); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PrometheusDeviceMetrics) ResourceCreated(kind string) {
	p.resourceCreated.WithLabelValues(kind).Inc()
}

func (p *PrometheusDeviceMetrics) ResourceDestroyed(kind string) {
	p.resourceDestroyed.WithLabelValues(kind).Inc()
}

func (p *PrometheusDeviceMetrics) SendPosted(opcode string) {
	p.sendPosted.WithLabelValues(opcode).Inc()
}

func (p *PrometheusDeviceMetrics) RecvPosted() {
	p.recvPosted.Inc()
}

func (p *PrometheusDeviceMetrics) CompletionPolled(status string) {
	p.completionPolled.WithLabelValues(status).Inc()
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}
