package rdma

// ProtectionDomain wraps a protection domain handle.
type ProtectionDomain struct {
	device *Device
	handle uint32
}

// Handle returns the raw pd_handle value.
func (p *ProtectionDomain) Handle() uint32 {
	if p == nil {
		return 0
	}
	return p.handle
}

// AddResource records that a resource handle of the given kind (e.g. "qp",
// "mr") belongs to this protection domain.
func (p *ProtectionDomain) AddResource(kind string, handle uint32) error {
	if p == nil || p.device == nil || p.device.eng == nil {
		return ErrInvalidHandle{"protection domain"}
	}
	if !p.device.eng.AddPDResource(p.handle, kind, handle) {
		return ErrInvalidHandle{"protection domain"}
	}
	return nil
}

// RemoveResource forgets that a resource handle of the given kind belongs
// to this protection domain.
func (p *ProtectionDomain) RemoveResource(kind string, handle uint32) error {
	if p == nil || p.device == nil || p.device.eng == nil {
		return ErrInvalidHandle{"protection domain"}
	}
	if !p.device.eng.RemovePDResource(p.handle, kind, handle) {
		return ErrInvalidHandle{"protection domain"}
	}
	return nil
}

// Resources returns a read snapshot of this protection domain's tracked
// resources, keyed by kind.
func (p *ProtectionDomain) Resources() (map[string][]uint32, error) {
	if p == nil || p.device == nil || p.device.eng == nil {
		return nil, ErrInvalidHandle{"protection domain"}
	}
	v, ok := p.device.eng.GetPDInfo(p.handle)
	if !ok {
		return nil, ErrInvalidHandle{"protection domain"}
	}
	return v.Resources, nil
}

// Destroy releases the protection domain.
func (p *ProtectionDomain) Destroy() error {
	if p == nil || p.device == nil || p.device.eng == nil {
		return ErrInvalidHandle{"protection domain"}
	}
	p.device.eng.DestroyPD(p.handle)
	p.device.metricResourceDestroyed("pd")
	return nil
}
