package engine

import "sync"

// registryEntry is the process-wide registry's view of a queue pair: which
// device owns it plus a generation counter. Lookup returns only the device
// and never compares generations; Remove deletes the entry outright, so the
// generation of a later Register for the same qp_num starts again at 0.
type registryEntry struct {
	device     *Device
	generation uint64
}

// Registry is the process-wide queue-pair registry. A single Registry is
// shared by every Device that should be able to deliver two-sided
// operations to one another; devices that should not see each other's
// queue pairs should be constructed with distinct Registries. This makes
// the "process-wide" scope an explicit construction-time choice instead of
// a package-level global.
type Registry struct {
	mu      sync.Mutex
	entries map[uint32]registryEntry
}

// NewRegistry constructs an empty process-wide queue-pair registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uint32]registryEntry)}
}

// Register records that qpNum is currently owned by device. Called lazily
// by post_send/post_recv.
func (r *Registry) Register(qpNum uint32, device *Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[qpNum]
	if ok && entry.device == device {
		return
	}
	gen := uint64(0)
	if ok {
		gen = entry.generation
	}
	r.entries[qpNum] = registryEntry{device: device, generation: gen}
}

// Lookup resolves qpNum to its owning device, or reports false if no live
// entry exists.
func (r *Registry) Lookup(qpNum uint32) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[qpNum]
	if !ok {
		return nil, false
	}
	return entry.device, true
}

// Remove erases qpNum's registry entry, whichever device registered it.
// Lookup for qpNum then fails until the next Register.
func (r *Registry) Remove(qpNum uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[qpNum]
	if !ok {
		return
	}
	entry.generation++
	delete(r.entries, qpNum)
}
