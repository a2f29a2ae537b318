package engine

import (
	"sync/atomic"
	"time"
)

// Tuning holds the process-wide simulation knobs: residency tier delays,
// middle-cache enablement, QP transition strictness, CQ depth enforcement,
// and eviction policy. It is constructed once per simulated "process" and
// shared across every Device that belongs to that process,
// rather than living in package-level globals.
// Every field is read lock-free via sync/atomic and mutated only through the
// setters below.
type Tuning struct {
	enableMiddleCache   atomic.Bool
	hostSwapDelayNs     atomic.Uint32
	deviceDelayNs       atomic.Uint32
	middleDelayNs       atomic.Uint32
	cqSimulatedDelayNs  atomic.Uint32
	permissiveTransition atomic.Bool
	enforceCQDepth      atomic.Bool
	arbitraryEviction   atomic.Bool
}

// NewTuning returns a Tuning with conservative defaults: middle cache
// enabled, all delays zero, canonical QP transitions, CQ capacity
// enforced, LRU eviction.
func NewTuning() *Tuning {
	t := &Tuning{}
	t.enableMiddleCache.Store(true)
	t.enforceCQDepth.Store(true)
	return t
}

func (t *Tuning) EnableMiddleCache() bool { return t.enableMiddleCache.Load() }
func (t *Tuning) HostSwapDelay() time.Duration {
	return time.Duration(t.hostSwapDelayNs.Load())
}
func (t *Tuning) DeviceDelay() time.Duration {
	return time.Duration(t.deviceDelayNs.Load())
}
func (t *Tuning) MiddleDelay() time.Duration {
	return time.Duration(t.middleDelayNs.Load())
}

// CQDelay returns the CQ-cache tier's effective delay: the explicit
// simulated-delay override when set, else the shared middle-tier delay.
func (t *Tuning) CQDelay() time.Duration {
	if d := t.cqSimulatedDelayNs.Load(); d > 0 {
		return time.Duration(d)
	}
	return t.MiddleDelay()
}

func (t *Tuning) PermissiveTransitions() bool { return t.permissiveTransition.Load() }
func (t *Tuning) EnforceCQDepth() bool         { return t.enforceCQDepth.Load() }
func (t *Tuning) ArbitraryEviction() bool      { return t.arbitraryEviction.Load() }

// SetSimulationMode updates the core residency/delay knobs atomically.
func (t *Tuning) SetSimulationMode(enableMiddleCache bool, hostSwapDelayNs, deviceDelayNs, middleDelayNs uint32) {
	t.enableMiddleCache.Store(enableMiddleCache)
	t.hostSwapDelayNs.Store(hostSwapDelayNs)
	t.deviceDelayNs.Store(deviceDelayNs)
	t.middleDelayNs.Store(middleDelayNs)
}

// SetCQSimulatedDelayNs sets the CQ-cache tier's independent override delay.
func (t *Tuning) SetCQSimulatedDelayNs(delayNs uint32) {
	t.cqSimulatedDelayNs.Store(delayNs)
}

// SetPermissiveTransitions toggles an accept-all QP transition validator,
// for compatibility testing against callers that skip canonical states.
func (t *Tuning) SetPermissiveTransitions(permissive bool) {
	t.permissiveTransition.Store(permissive)
}

// SetEnforceCQDepth toggles canonical CQ-capacity enforcement versus an
// unbounded completion queue.
func (t *Tuning) SetEnforceCQDepth(enforce bool) {
	t.enforceCQDepth.Store(enforce)
}

// SetArbitraryEviction switches the middle cache to arbitrary-entry
// eviction on tier overflow instead of the default LRU policy.
func (t *Tuning) SetArbitraryEviction(arbitrary bool) {
	t.arbitraryEviction.Store(arbitrary)
}

func maybeSleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
