package rdma

// MemoryRegion wraps a registered-memory handle. The backing buffer is
// caller-owned; the simulator never frees it.
type MemoryRegion struct {
	device *Device
	handle uint32
}

// LKey returns the raw lkey value.
func (m *MemoryRegion) LKey() uint32 {
	if m == nil {
		return 0
	}
	return m.handle
}

// Info returns a read snapshot of the memory region's registered buffer
// metadata.
func (m *MemoryRegion) Info() (MRInfo, error) {
	if m == nil || m.device == nil || m.device.eng == nil {
		return MRInfo{}, ErrInvalidHandle{"memory region"}
	}
	v, ok := m.device.eng.GetMRInfo(m.handle)
	if !ok {
		return MRInfo{}, ErrInvalidHandle{"memory region"}
	}
	return MRInfo{LKey: v.LKey, Length: v.Length, Access: MRAccessFlag(v.Access)}, nil
}

// MRInfo is a read snapshot of a memory region's registration metadata.
type MRInfo struct {
	LKey   uint32
	Length uint64
	Access MRAccessFlag
}

// Deregister releases the memory region.
func (m *MemoryRegion) Deregister() error {
	if m == nil || m.device == nil || m.device.eng == nil {
		return ErrInvalidHandle{"memory region"}
	}
	m.device.eng.DeregisterMR(m.handle)
	m.device.metricResourceDestroyed("mr")
	return nil
}
