package engine

import (
	"container/list"
	"sync"
)

// CQStore is the completion-queue residency store. It behaves like
// TieredStore[CQValue] for create/get/erase, but additionally exposes FIFO
// completion operations (append_completions, take_completions) and charges
// the CQ-cache tier's independent delay override (Tuning.CQDelay) rather
// than the shared middle-tier delay.
type CQStore struct {
	mu     sync.Mutex
	tuning *Tuning

	deviceCap int
	device    map[uint32]*CQValue

	middleCap   int
	middle      map[uint32]*CQValue
	middleOrder *list.List
	middleElem  map[uint32]*list.Element

	host map[uint32]*CQValue
}

// NewCQStore constructs a completion-queue store with the given device-tier
// capacity; the middle cache capacity is fixed at 2x the device capacity.
func NewCQStore(tuning *Tuning, deviceCap int) *CQStore {
	return &CQStore{
		tuning:      tuning,
		deviceCap:   deviceCap,
		device:      make(map[uint32]*CQValue),
		middleCap:   deviceCap * 2,
		middle:      make(map[uint32]*CQValue),
		middleOrder: list.New(),
		middleElem:  make(map[uint32]*list.Element),
		host:        make(map[uint32]*CQValue),
	}
}

// Put inserts a freshly created CQ, choosing a tier by capacity.
func (s *CQStore) Put(cqNum uint32, v *CQValue) Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.device) < s.deviceCap {
		maybeSleep(s.tuning.DeviceDelay())
		s.device[cqNum] = v
		return TierDevice
	}
	if s.tuning.EnableMiddleCache() {
		maybeSleep(s.tuning.CQDelay())
		s.evictMiddleIfFull()
		s.middle[cqNum] = v
		s.touchMiddle(cqNum)
		return TierMiddle
	}
	maybeSleep(s.tuning.HostSwapDelay())
	s.host[cqNum] = v
	return TierHost
}

// Get looks up a CQ record across tiers, charging each consulted tier's
// delay even on a miss.
func (s *CQStore) Get(cqNum uint32) (*CQValue, Tier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maybeSleep(s.tuning.DeviceDelay())
	if v, ok := s.device[cqNum]; ok {
		return v, TierDevice, true
	}
	if s.tuning.EnableMiddleCache() {
		maybeSleep(s.tuning.CQDelay())
		if v, ok := s.middle[cqNum]; ok {
			s.touchMiddle(cqNum)
			return v, TierMiddle, true
		}
		return nil, TierDevice, false
	}
	maybeSleep(s.tuning.HostSwapDelay())
	if v, ok := s.host[cqNum]; ok {
		return v, TierHost, true
	}
	return nil, TierDevice, false
}

// Erase removes a CQ: device tier first; on miss the middle cache entry is
// invalidated in place, or the host-swap entry is deleted outright.
func (s *CQStore) Erase(cqNum uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.device[cqNum]; ok {
		delete(s.device, cqNum)
		return true
	}
	if s.tuning.EnableMiddleCache() {
		if _, ok := s.middle[cqNum]; ok {
			s.middle[cqNum] = &CQValue{}
			return true
		}
		return false
	}
	if _, ok := s.host[cqNum]; ok {
		delete(s.host, cqNum)
		return true
	}
	return false
}

// AppendIfPresent appends a completion entry to whichever tier currently
// holds cqNum, without creating a new CQ record if the handle is absent
// from every tier (a dangling CQ handle is a soft error: the completion is
// silently dropped rather than failing the caller). Returns the tier the
// completion landed in plus whether it was delivered.
func (s *CQStore) AppendIfPresent(cqNum uint32, entry CompletionEntry) (Tier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.device[cqNum]; ok {
		s.appendEntry(v, entry)
		return TierDevice, true
	}
	if s.tuning.EnableMiddleCache() {
		if v, ok := s.middle[cqNum]; ok {
			maybeSleep(s.tuning.CQDelay())
			s.appendEntry(v, entry)
			s.touchMiddle(cqNum)
			return TierMiddle, true
		}
		return TierDevice, false
	}
	if v, ok := s.host[cqNum]; ok {
		maybeSleep(s.tuning.HostSwapDelay())
		s.appendEntry(v, entry)
		return TierHost, true
	}
	return TierDevice, false
}

func (s *CQStore) appendEntry(v *CQValue, entry CompletionEntry) {
	if s.tuning.EnforceCQDepth() && v.CQE > 0 && uint32(len(v.Completions)) >= v.CQE {
		v.Completions = append(v.Completions, CompletionEntry{
			WRID:   entry.WRID,
			Status: StatusCQOverflow,
			Opcode: entry.Opcode,
		})
		return
	}
	v.Completions = append(v.Completions, entry)
}

// Take moves up to max FIFO-front completions out of whichever tier holds
// cqNum. Returns false if the CQ is missing everywhere or has no completions.
func (s *CQStore) Take(cqNum uint32, max uint32) ([]CompletionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maybeSleep(s.tuning.DeviceDelay())
	if v, ok := s.device[cqNum]; ok {
		return s.drain(v, max)
	}
	if s.tuning.EnableMiddleCache() {
		maybeSleep(s.tuning.CQDelay())
		if v, ok := s.middle[cqNum]; ok {
			s.touchMiddle(cqNum)
			return s.drain(v, max)
		}
		return nil, false
	}
	maybeSleep(s.tuning.HostSwapDelay())
	if v, ok := s.host[cqNum]; ok {
		return s.drain(v, max)
	}
	return nil, false
}

func (s *CQStore) drain(v *CQValue, max uint32) ([]CompletionEntry, bool) {
	if len(v.Completions) == 0 {
		return nil, false
	}
	n := uint32(len(v.Completions))
	if max < n {
		n = max
	}
	out := append([]CompletionEntry(nil), v.Completions[:n]...)
	v.Completions = v.Completions[n:]
	return out, true
}

func (s *CQStore) touchMiddle(cqNum uint32) {
	if elem, ok := s.middleElem[cqNum]; ok {
		s.middleOrder.MoveToFront(elem)
		return
	}
	s.middleElem[cqNum] = s.middleOrder.PushFront(cqNum)
}

func (s *CQStore) evictMiddleIfFull() {
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
