package rdma

import (
	"github.com/example/rnicsim/internal/engine"
)

// Logger is the minimal sink Device forwards to the underlying engine.Device
// for soft-error reporting (e.g. a completion dropped because its CQ is no
// longer resident).
type Logger interface {
	Debugf(format string, args ...any)
}

// UnsetCapacity requests Device's built-in capacity default for the
// corresponding Config field; a literal 0 means a real zero-capacity tier.
const UnsetCapacity = engine.UnsetCapacity

// Config controls Device construction. A negative field (UnsetCapacity)
// falls back to a built-in default; 0 means a literal zero-capacity tier.
type Config struct {
	MaxConnections int
	MaxQPs         int
	MaxCQs         int
	MaxMRs         int
	MaxPDs         int
	Logger         Logger
	Metrics        DeviceMetrics
}

// DefaultConfig returns a Config requesting every engine-default capacity,
// for callers that don't care about residency limits.
func DefaultConfig() Config {
	return Config{
		MaxConnections: UnsetCapacity,
		MaxQPs:         UnsetCapacity,
		MaxCQs:         UnsetCapacity,
		MaxMRs:         UnsetCapacity,
		MaxPDs:         UnsetCapacity,
	}
}

type engineLoggerAdapter struct{ l Logger }

func (a engineLoggerAdapter) Debugf(format string, args ...any) { a.l.Debugf(format, args...) }

// Device is the public handle onto a simulated RDMA NIC.
type Device struct {
	eng     *engine.Device
	metrics DeviceMetrics
}

// NewDevice constructs a Device sharing the given process-wide registry and
// simulation tuning. A nil tuning gets engine defaults; a nil registry
// isolates this device from every other device's two-sided deliveries.
func NewDevice(registry *Registry, tuning *engine.Tuning, cfg Config) *Device {
	var logger engine.Logger
	if cfg.Logger != nil {
		logger = engineLoggerAdapter{cfg.Logger}
	}
	if registry == nil {
		registry = engine.NewRegistry()
	}
	eng := engine.NewDevice(registry, tuning, engine.Config{
		MaxConnections: cfg.MaxConnections,
		MaxQPs:         cfg.MaxQPs,
		MaxCQs:         cfg.MaxCQs,
		MaxMRs:         cfg.MaxMRs,
		MaxPDs:         cfg.MaxPDs,
		Logger:         logger,
	})
	return &Device{eng: eng, metrics: cfg.Metrics}
}

// Close stops the device's background maintenance goroutine.
func (d *Device) Close() error {
	if d == nil || d.eng == nil {
		return nil
	}
	return d.eng.Close()
}

// ID returns the device's process-unique identity.
func (d *Device) ID() uint64 {
	if d == nil || d.eng == nil {
		return 0
	}
	return d.eng.ID()
}

// QPTier reports which residency tier currently holds the queue pair
// identified by qpNum.
func (d *Device) QPTier(qpNum uint32) (Tier, bool) {
	if d == nil || d.eng == nil {
		return TierDevice, false
	}
	return d.eng.QPTier(qpNum)
}

// CQTier reports which residency tier currently holds the completion queue
// identified by cqNum.
func (d *Device) CQTier(cqNum uint32) (Tier, bool) {
	if d == nil || d.eng == nil {
		return TierDevice, false
	}
	return d.eng.CQTier(cqNum)
}

// CreatePD allocates a protection domain.
func (d *Device) CreatePD() (*ProtectionDomain, error) {
	if d == nil || d.eng == nil {
		return nil, ErrInvalidHandle{"device"}
	}
	handle := d.eng.CreatePD()
	if handle == 0 {
		return nil, ErrCreateFailed
	}
	d.metricResourceCreated("pd")
	return &ProtectionDomain{device: d, handle: handle}, nil
}

// CreateCQ allocates a completion queue with the given advisory capacity.
func (d *Device) CreateCQ(maxCQE uint32) (*CompletionQueue, error) {
	if d == nil || d.eng == nil {
		return nil, ErrInvalidHandle{"device"}
	}
	cqNum := d.eng.CreateCQ(maxCQE)
	if cqNum == 0 {
		return nil, ErrCreateFailed
	}
	d.metricResourceCreated("cq")
	return &CompletionQueue{device: d, handle: cqNum}, nil
}

// QPInitAttr controls CreateQP.
type QPInitAttr struct {
	MaxSendWR uint32
	MaxRecvWR uint32
	SendCQ    *CompletionQueue
	RecvCQ    *CompletionQueue
}

// CreateQP allocates a queue pair bound to the given send/recv completion queues.
func (d *Device) CreateQP(attr QPInitAttr) (*QueuePair, error) {
	if d == nil || d.eng == nil {
		return nil, ErrInvalidHandle{"device"}
	}
	if attr.SendCQ == nil || attr.RecvCQ == nil {
		return nil, ErrInvalidHandle{"completion queue"}
	}
	qpNum := d.eng.CreateQP(attr.MaxSendWR, attr.MaxRecvWR, attr.SendCQ.handle, attr.RecvCQ.handle)
	if qpNum == 0 {
		return nil, ErrCreateFailed
	}
	d.metricResourceCreated("qp")
	return &QueuePair{device: d, handle: qpNum}, nil
}

// RegisterMR registers a caller-owned buffer for RDMA access.
func (d *Device) RegisterMR(addr []byte, access MRAccessFlag) (*MemoryRegion, error) {
	if d == nil || d.eng == nil {
		return nil, ErrInvalidHandle{"device"}
	}
	lkey := d.eng.RegisterMR(addr, uint32(access))
	if lkey == 0 {
		return nil, ErrCreateFailed
	}
	d.metricResourceCreated("mr")
	return &MemoryRegion{device: d, handle: lkey}, nil
}
