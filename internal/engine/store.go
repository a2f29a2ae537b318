package engine

import (
	"container/list"
	"sync"
)

// Tier identifies which residency tier currently backs a record.
type Tier int

const (
	TierDevice Tier = iota
	TierMiddle
	TierHost
)

func (t Tier) String() string {
	switch t {
	case TierDevice:
		return "device"
	case TierMiddle:
		return "middle"
	case TierHost:
		return "host"
	default:
		return "unknown"
	}
}

// TieredStore is the per-kind residency store: a capacity-bounded device
// tier, an optional capacity-bounded middle cache,
// and an unbounded host-swap tier used only while the middle cache is
// disabled. New resources spill from the device tier to the middle/host
// tier when the device tier is full; the middle tier evicts an existing
// entry (LRU by default, arbitrary under Tuning.ArbitraryEviction) when it
// is full. The device tier never evicts.
type TieredStore[V any] struct {
	mu     sync.Mutex
	tuning *Tuning

	deviceCap int
	device    map[uint32]V

	middleCap    int
	middle       map[uint32]V
	middleOrder  *list.List
	middleElem   map[uint32]*list.Element

	host map[uint32]V
}

// NewTieredStore constructs a store with the given device-tier capacity.
// The middle cache capacity is fixed at 2x the device capacity.
func NewTieredStore[V any](tuning *Tuning, deviceCap int) *TieredStore[V] {
	return &TieredStore[V]{
		tuning:      tuning,
		deviceCap:   deviceCap,
		device:      make(map[uint32]V),
		middleCap:   deviceCap * 2,
		middle:      make(map[uint32]V),
		middleOrder: list.New(),
		middleElem:  make(map[uint32]*list.Element),
		host:        make(map[uint32]V),
	}
}

// Put inserts a freshly created record, choosing a tier by capacity, and
// returns the tier it landed in.
func (s *TieredStore[V]) Put(handle uint32, v V) Tier {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.device) < s.deviceCap {
		maybeSleep(s.tuning.DeviceDelay())
		s.device[handle] = v
		return TierDevice
	}

	if s.tuning.EnableMiddleCache() {
		maybeSleep(s.tuning.MiddleDelay())
		s.evictMiddleIfFullLocked()
		s.middle[handle] = v
		s.touchMiddleLocked(handle)
		return TierMiddle
	}

	maybeSleep(s.tuning.HostSwapDelay())
	s.host[handle] = v
	return TierHost
}

// PutInto forces a record directly into a specific tier, bypassing the
// capacity-driven spill decision and the middle-tier eviction check.
func (s *TieredStore[V]) PutInto(tier Tier, handle uint32, v V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch tier {
	case TierDevice:
		s.device[handle] = v
	case TierMiddle:
		s.middle[handle] = v
		s.touchMiddleLocked(handle)
	case TierHost:
		s.host[handle] = v
	}
}

// Get looks up a record across tiers: device tier first; on miss, middle
// cache if enabled, else host-swap. Each
// consulted tier imposes its configured delay even on a miss.
func (s *TieredStore[V]) Get(handle uint32) (V, Tier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maybeSleep(s.tuning.DeviceDelay())
	if v, ok := s.device[handle]; ok {
		return v, TierDevice, true
	}

	if s.tuning.EnableMiddleCache() {
		maybeSleep(s.tuning.MiddleDelay())
		if v, ok := s.middle[handle]; ok {
			s.touchMiddleLocked(handle)
			return v, TierMiddle, true
		}
		var zero V
		return zero, TierDevice, false
	}

	maybeSleep(s.tuning.HostSwapDelay())
	if v, ok := s.host[handle]; ok {
		return v, TierHost, true
	}
	var zero V
	return zero, TierDevice, false
}

// Erase removes a record: device tier first; on miss, the middle cache entry
// is invalidated in place (overwritten with the zero value) or the
// host-swap entry is deleted outright.
func (s *TieredStore[V]) Erase(handle uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.device[handle]; ok {
		delete(s.device, handle)
		return true
	}

	if s.tuning.EnableMiddleCache() {
		if _, ok := s.middle[handle]; ok {
			var zero V
			s.middle[handle] = zero
			return true
		}
		return false
	}

	if _, ok := s.host[handle]; ok {
		delete(s.host, handle)
		return true
	}
	return false
}

// Mutate applies fn to the record in whichever tier currently holds it,
// writing the result back into that same tier. Returns false if the handle
// is not resident anywhere.
func (s *TieredStore[V]) Mutate(handle uint32, fn func(V) V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.device[handle]; ok {
		s.device[handle] = fn(v)
		return true
	}
	if s.tuning.EnableMiddleCache() {
		if v, ok := s.middle[handle]; ok {
			s.middle[handle] = fn(v)
			s.touchMiddleLocked(handle)
			return true
		}
		return false
	}
	if v, ok := s.host[handle]; ok {
		s.host[handle] = fn(v)
		return true
	}
	return false
}

func (s *TieredStore[V]) touchMiddleLocked(handle uint32) {
	if elem, ok := s.middleElem[handle]; ok {
		s.middleOrder.MoveToFront(elem)
		return
	}
	s.middleElem[handle] = s.middleOrder.PushFront(handle)
}

func (s *TieredStore[V]) evictMiddleIfFullLocked() {
	if len(s.middle) < s.middleCap {
		return
	}
	var victim uint32
	found := false

	if s.tuning.ArbitraryEviction() {
		for h := range s.middle {
			victim = h
			found = true
			break
		}
	} else if back := s.middleOrder.Back(); back != nil {
		victim = back.Value.(uint32)
		found = true
	}

	if !found {
		return
	}
	delete(s.middle, victim)
	if elem, ok := s.middleElem[victim]; ok {
		s.middleOrder.Remove(elem)
		delete(s.middleElem, victim)
	}
}
