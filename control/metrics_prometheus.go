package control

import "github.com/prometheus/client_golang/prometheus"

// PrometheusMetricsOptions configures NewPrometheusMetrics.
type PrometheusMetricsOptions struct {
	Registerer  prometheus.Registerer
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
}

var _ MetricHook = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements MetricHook using Prometheus counters.
type PrometheusMetrics struct {
	dialStarted    *prometheus.CounterVec
	dialSucceeded  *prometheus.CounterVec
	dialFailed     *prometheus.CounterVec
	acceptStarted  *prometheus.CounterVec
	acceptSucceeded *prometheus.CounterVec
	acceptFailed   *prometheus.CounterVec
	frameRejected  *prometheus.CounterVec
}

const (
	labelNode    = "node"
	labelService = "service"
	labelReason  = "reason"
)

var (
	connectionLabelKeys = []string{labelNode, labelService}
	rejectionLabelKeys  = []string{labelNode, labelService, labelReason}
)

// NewPrometheusMetrics constructs a MetricHook backed by Prometheus counters.
func NewPrometheusMetrics(opts PrometheusMetricsOptions) (*PrometheusMetrics, error) {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	p := &PrometheusMetrics{
		dialStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "control_dial_started_total",
			Help:        "Number of handshake dial attempts started",
			ConstLabels: opts.ConstLabels,
		}, connectionLabelKeys),
		dialSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "control_dial_succeeded_total",
			Help:        "Number of handshake dial attempts that completed the handshake",
			ConstLabels: opts.ConstLabels,
		}, connectionLabelKeys),
		dialFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "control_dial_failed_total",
			Help:        "Number of handshake dial attempts that failed",
			ConstLabels: opts.ConstLabels,
		}, connectionLabelKeys),
		acceptStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "control_accept_started_total",
			Help:        "Number of handshake accept attempts started",
			ConstLabels: opts.ConstLabels,
		}, connectionLabelKeys),
		acceptSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "control_accept_succeeded_total",
			Help:        "Number of handshake accept attempts that completed the handshake",
			ConstLabels: opts.ConstLabels,
		}, connectionLabelKeys),
		acceptFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "control_accept_failed_total",
			Help:        "Number of handshake accept attempts that failed",
			ConstLabels: opts.ConstLabels,
		}, connectionLabelKeys),
		frameRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        "control_frame_rejected_total",
			Help:        "Number of frames rejected for a malformed length prefix or body",
			ConstLabels: opts.ConstLabels,
		}, rejectionLabelKeys),
	}

	var err error
	if p.dialStarted, err = registerCounterVec(reg, p.dialStarted); err != nil {
		return nil, err
	}
	if p.dialSucceeded, err = registerCounterVec(reg, p.dialSucceeded); err != nil {
		return nil, err
	}
	if p.dialFailed, err = registerCounterVec(reg, p.dialFailed); err != nil {
		return nil, err
	}
	if p.acceptStarted, err = registerCounterVec(reg, p.acceptStarted); err != nil {
		return nil, err
	}
	if p.acceptSucceeded, err = registerCounterVec(reg, p.acceptSucceeded); err != nil {
		return nil, err
	}
	if p.acceptFailed, err = registerCounterVec(reg, p.acceptFailed); err != nil {
		return nil, err
	}
	if p.frameRejected, err = registerCounterVec(reg, p.frameRejected); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *PrometheusMetrics) DialStarted(attrs map[string]string) {
	p.dialStarted.With(labels(attrs, connectionLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) DialSucceeded(attrs map[string]string) {
	p.dialSucceeded.With(labels(attrs, connectionLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) DialFailed(_ error, attrs map[string]string) {
	p.dialFailed.With(labels(attrs, connectionLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) AcceptStarted(attrs map[string]string) {
	p.acceptStarted.With(labels(attrs, connectionLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) AcceptSucceeded(attrs map[string]string) {
	p.acceptSucceeded.With(labels(attrs, connectionLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) AcceptFailed(_ error, attrs map[string]string) {
	p.acceptFailed.With(labels(attrs, connectionLabelKeys...)).Inc()
}

func (p *PrometheusMetrics) FrameRejected(reason string, attrs map[string]string) {
	labs := labels(attrs, rejectionLabelKeys...)
	labs[labelReason] = reason
	p.frameRejected.With(labs).Inc()
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

func labels(attrs map[string]string, keys ...string) prometheus.Labels {
	labs := make(prometheus.Labels, len(keys))
	for _, key := range keys {
		labs[key] = attrs[key]
	}
	return labs
}
