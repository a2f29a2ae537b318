package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// Logger is the minimal sink Device uses to report soft errors (e.g. a
// completion that could not be delivered because its CQ vanished). It is
// satisfied by the richer Logger interface in package control.
type Logger interface {
	Debugf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}

// UnsetCapacity requests Device's built-in capacity default for the
// corresponding Config field. A literal 0 is a valid, meaningful capacity
// (a device tier with no room at all, spilling every new resource straight
// to the middle/host tier), so the "use the default" sentinel has to be a
// value no real capacity can take.
const UnsetCapacity = -1

// Config controls Device construction. A negative field (UnsetCapacity)
// falls back to a built-in default; 0 means a literal zero-capacity tier.
type Config struct {
	MaxConnections int
	MaxQPs         int
	MaxCQs         int
	MaxMRs         int
	MaxPDs         int
	Logger         Logger
}

func (c Config) withDefaults() Config {
	if c.MaxConnections < 0 {
		c.MaxConnections = 1024
	}
	if c.MaxQPs < 0 {
		c.MaxQPs = 256
	}
	if c.MaxCQs < 0 {
		c.MaxCQs = 256
	}
	if c.MaxMRs < 0 {
		c.MaxMRs = 1024
	}
	if c.MaxPDs < 0 {
		c.MaxPDs = 64
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
	return c
}

var deviceSeq atomic.Uint64

// Device simulates a single RDMA NIC: it owns the four per-kind residency
// stores, allocates handles out of four independent counters, validates and
// performs verbs operations, and produces completions. Device holds one
// mutex per resource kind; the locking discipline (nesting only qp -> cq,
// never any other pair) is enforced by which methods take which
// locks below.
type Device struct {
	id       uint64
	cfg      Config
	registry *Registry
	tuning   *Tuning

	qpMu sync.Mutex
	cqMu sync.Mutex
	mrMu sync.Mutex
	pdMu sync.Mutex

	qpStore *TieredStore[QPValue]
	cqStore *CQStore
	mrStore *TieredStore[MRValue]
	pdStore *TieredStore[PDValue]

	nextQPNum    atomic.Uint32
	nextCQNum    atomic.Uint32
	nextMRLKey   atomic.Uint32
	nextPDHandle atomic.Uint32

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDevice constructs a Device sharing the given process-wide registry and
// simulation tuning. Multiple devices sharing one Registry can deliver
// two-sided verbs operations to one another.
func NewDevice(registry *Registry, tuning *Tuning, cfg Config) *Device {
	cfg = cfg.withDefaults()
	if tuning == nil {
		tuning = NewTuning()
	}
	d := &Device{
		id:       deviceSeq.Add(1),
		cfg:      cfg,
		registry: registry,
		tuning:   tuning,
		qpStore:  NewTieredStore[QPValue](tuning, cfg.MaxQPs),
		cqStore:  NewCQStore(tuning, cfg.MaxCQs),
		mrStore:  NewTieredStore[MRValue](tuning, cfg.MaxMRs),
		pdStore:  NewTieredStore[PDValue](tuning, cfg.MaxPDs),
		stopCh:   make(chan struct{}),
	}
	d.nextQPNum.Store(1)
	d.nextCQNum.Store(1)
	d.nextMRLKey.Store(1)
	d.nextPDHandle.Store(1)
	d.startMaintenance()
	return d
}

// ID returns the device's process-unique identity. No operation holds two
// devices' locks at once, so no lock order is derived from it.
func (d *Device) ID() uint64 { return d.id }

// Close stops the device's background maintenance goroutine and waits for it
// to exit. A Device that is never closed leaks nothing but that goroutine.
func (d *Device) Close() error {
	close(d.stopCh)
	d.wg.Wait()
	return nil
}

func nextHandle(counter *atomic.Uint32) uint32 {
	return counter.Add(1) - 1
}

// CreatePD allocates a fresh protection domain handle. Never fails.
func (d *Device) CreatePD() uint32 {
	d.pdMu.Lock()
	defer d.pdMu.Unlock()
	h := nextHandle(&d.nextPDHandle)
	d.pdStore.Put(h, newPDValue(h))
	return h
}

// CreateCQ allocates a fresh completion queue with the given advisory
// capacity. Returns 0 if maxCQE is 0.
func (d *Device) CreateCQ(maxCQE uint32) uint32 {
	if maxCQE == 0 {
		return 0
	}
	d.cqMu.Lock()
	defer d.cqMu.Unlock()
	cqNum := nextHandle(&d.nextCQNum)
	d.cqStore.Put(cqNum, &CQValue{CQNum: cqNum, CQE: maxCQE})
	return cqNum
}

// CreateQP allocates a fresh queue pair bound to the given send/recv CQs.
// Returns 0 if either CQ cannot be found in any tier, or maxSendWR is 0.
func (d *Device) CreateQP(maxSendWR, maxRecvWR, sendCQ, recvCQ uint32) uint32 {
	if maxSendWR == 0 {
		return 0
	}

	d.qpMu.Lock()
	defer d.qpMu.Unlock()

	d.cqMu.Lock()
	_, _, sendOK := d.cqStore.Get(sendCQ)
	_, _, recvOK := d.cqStore.Get(recvCQ)
	d.cqMu.Unlock()
	if !sendOK || !recvOK {
		return 0
	}

	qpNum := nextHandle(&d.nextQPNum)
	v := QPValue{
		QPNum:     qpNum,
		State:     QPStateReset,
		SendCQ:    sendCQ,
		RecvCQ:    recvCQ,
		PortNum:   1,
		MTU:       1024,
		CreatedAt: time.Now(),
	}
	d.qpStore.Put(qpNum, v)
	return qpNum
}

// RegisterMR registers a caller-owned buffer for RDMA access. Returns 0 if
// addr is nil.
func (d *Device) RegisterMR(addr []byte, access uint32) uint32 {
	if addr == nil {
		return 0
	}
	d.mrMu.Lock()
	defer d.mrMu.Unlock()
	lkey := nextHandle(&d.nextMRLKey)
	d.mrStore.Put(lkey, MRValue{LKey: lkey, Addr: addr, Length: uint64(len(addr)), Access: access})
	return lkey
}

// ModifyQPState transitions qpNum to newState if the transition is allowed
// by the active validator (canonical by default, permissive under
// Tuning.PermissiveTransitions).
func (d *Device) ModifyQPState(qpNum uint32, newState QPState) bool {
	d.qpMu.Lock()
	defer d.qpMu.Unlock()
	v, _, ok := d.qpStore.Get(qpNum)
	if !ok {
		return false
	}
	if !d.validateTransition(v.State, newState) {
		return false
	}
	d.qpStore.Mutate(qpNum, func(q QPValue) QPValue {
		q.State = newState
		return q
	})
	return true
}

// ConnectQP copies the remote peer's connection parameters into the local
// queue pair's record.
func (d *Device) ConnectQP(qpNum uint32, remote QPValue) bool {
	d.qpMu.Lock()
	defer d.qpMu.Unlock()
	if _, _, ok := d.qpStore.Get(qpNum); !ok {
		return false
	}
	d.qpStore.Mutate(qpNum, func(q QPValue) QPValue {
		q.DestQPNum = remote.QPNum
		q.RemoteLID = remote.LID
		q.RemotePSN = remote.PSN
		q.RemoteGID = remote.GID
		return q
	})
	return true
}

// PostSend implements the send pipeline: it validates
// state, synthesizes a send-side completion when signaled, and for SEND /
// RDMA_WRITE opcodes delivers the payload to the destination queue pair
// through the process-wide registry.
func (d *Device) PostSend(qpNum uint32, wr WorkRequest) bool {
	d.qpMu.Lock()
	v, _, found := d.qpStore.Get(qpNum)
	if !found {
		d.qpMu.Unlock()
		return false
	}
	d.registry.Register(qpNum, d)

	if v.State != QPStateRTS {
		d.qpMu.Unlock()
		return false
	}

	if wr.Signaled {
		entry := CompletionEntry{WRID: wr.WRID, Status: StatusSuccess, Opcode: wr.Opcode, Length: wr.Length, ImmData: wr.ImmData}
		d.cqMu.Lock()
		if _, ok := d.cqStore.AppendIfPresent(v.SendCQ, entry); !ok {
			d.cfg.Logger.Debugf("engine: dropped send completion, CQ %d not resident", v.SendCQ)
		}
		d.cqMu.Unlock()
	}

	destQPNum := v.DestQPNum
	d.qpMu.Unlock()

	if wr.Opcode == OpSend || wr.Opcode == OpRDMAWrite {
		if remote, ok := d.registry.Lookup(destQPNum); ok {
			remote.deliverPayload(destQPNum, wr)
		}
	}
	return true
}

// deliverPayload implements step 4 of the send pipeline on the destination
// device: copy min(wr.Length, recv_length) bytes into a posted recv buffer
// and complete it, or, with no buffer posted, stash the first wr.Length
// bytes in pending_data for a future post_recv.
func (d *Device) deliverPayload(qpNum uint32, wr WorkRequest) {
	d.qpMu.Lock()
	v, _, found := d.qpStore.Get(qpNum)
	if !found {
		d.qpMu.Unlock()
		return
	}

	if v.hasRecvBuffer() {
		n := int(wr.Length)
		if int(v.RecvLength) < n {
			n = int(v.RecvLength)
		}
		if len(wr.LocalAddr) < n {
			n = len(wr.LocalAddr)
		}
		copy(v.RecvAddr, wr.LocalAddr[:n])
		recvCQ := v.RecvCQ
		d.qpStore.Mutate(qpNum, func(q QPValue) QPValue {
			q.RecvAddr = nil
			q.RecvLength = 0
			return q
		})
		d.qpMu.Unlock()

		entry := CompletionEntry{Status: StatusSuccess, Opcode: OpRecv, Length: uint32(n)}
		d.cqMu.Lock()
		if _, ok := d.cqStore.AppendIfPresent(recvCQ, entry); !ok {
			d.cfg.Logger.Debugf("engine: dropped recv completion, CQ %d not resident", recvCQ)
		}
		d.cqMu.Unlock()
		return
	}

	n := int(wr.Length)
	if len(wr.LocalAddr) < n {
		n = len(wr.LocalAddr)
	}
	pending := append([]byte(nil), wr.LocalAddr[:n]...)
	d.qpStore.Mutate(qpNum, func(q QPValue) QPValue {
		q.PendingData = pending
		return q
	})
	d.qpMu.Unlock()
}

// PostRecv posts a receive buffer on qpNum. If a payload is already staged
// in pending_data it is drained immediately and a RECV completion is
// produced synchronously.
func (d *Device) PostRecv(qpNum uint32, wr WorkRequest) bool {
	d.qpMu.Lock()
	v, _, found := d.qpStore.Get(qpNum)
	if !found {
		d.qpMu.Unlock()
		return false
	}
	if v.State != QPStateRTR && v.State != QPStateRTS {
		d.qpMu.Unlock()
		return false
	}

	if len(v.PendingData) > 0 {
		n := len(v.PendingData)
		if int(wr.Length) < n {
			n = int(wr.Length)
		}
		if wr.LocalAddr != nil {
			copy(wr.LocalAddr, v.PendingData[:n])
		}
		recvCQ := v.RecvCQ
		d.qpStore.Mutate(qpNum, func(q QPValue) QPValue {
			q.PendingData = nil
			q.RecvAddr = nil
			q.RecvLength = 0
			return q
		})
		d.qpMu.Unlock()

		entry := CompletionEntry{WRID: wr.WRID, Status: StatusSuccess, Opcode: OpRecv, Length: uint32(n)}
		d.cqMu.Lock()
		if _, ok := d.cqStore.AppendIfPresent(recvCQ, entry); !ok {
			d.cfg.Logger.Debugf("engine: dropped recv completion, CQ %d not resident", recvCQ)
		}
		d.cqMu.Unlock()
		return true
	}

	d.qpStore.Mutate(qpNum, func(q QPValue) QPValue {
		q.RecvAddr = wr.LocalAddr
		q.RecvLength = wr.Length
		return q
	})
	d.registry.Register(qpNum, d)
	d.qpMu.Unlock()
	return true
}

// PollCQ moves up to maxEntries FIFO-front completions out of cqNum.
func (d *Device) PollCQ(cqNum uint32, maxEntries uint32) ([]CompletionEntry, bool) {
	d.cqMu.Lock()
	defer d.cqMu.Unlock()
	return d.cqStore.Take(cqNum, maxEntries)
}

// DestroyQP removes qpNum from residency and erases its registry entry, so
// a reused qp_num can never resolve to a destroyed queue pair.
func (d *Device) DestroyQP(qpNum uint32) {
	d.qpMu.Lock()
	d.qpStore.Erase(qpNum)
	d.qpMu.Unlock()
	d.registry.Remove(qpNum)
}

// DestroyCQ removes cqNum from residency.
func (d *Device) DestroyCQ(cqNum uint32) {
	d.cqMu.Lock()
	d.cqStore.Erase(cqNum)
	d.cqMu.Unlock()
}

// DeregisterMR removes lkey from residency.
func (d *Device) DeregisterMR(lkey uint32) {
	d.mrMu.Lock()
	d.mrStore.Erase(lkey)
	d.mrMu.Unlock()
}

// DestroyPD removes pdHandle from residency.
func (d *Device) DestroyPD(pdHandle uint32) {
	d.pdMu.Lock()
	d.pdStore.Erase(pdHandle)
	d.pdMu.Unlock()
}

// GetQPInfo returns a read-through snapshot of qpNum across tiers.
func (d *Device) GetQPInfo(qpNum uint32) (QPValue, bool) {
	d.qpMu.Lock()
	defer d.qpMu.Unlock()
	v, _, ok := d.qpStore.Get(qpNum)
	return v, ok
}

// GetCQInfo returns a read-through snapshot of cqNum across tiers.
func (d *Device) GetCQInfo(cqNum uint32) (CQValue, bool) {
	d.cqMu.Lock()
	defer d.cqMu.Unlock()
	v, _, ok := d.cqStore.Get(cqNum)
	if !ok {
		return CQValue{}, false
	}
	return *v, true
}

// QPTier reports which residency tier currently holds qpNum.
func (d *Device) QPTier(qpNum uint32) (Tier, bool) {
	d.qpMu.Lock()
	defer d.qpMu.Unlock()
	_, tier, ok := d.qpStore.Get(qpNum)
	return tier, ok
}

// CQTier reports which residency tier currently holds cqNum.
func (d *Device) CQTier(cqNum uint32) (Tier, bool) {
	d.cqMu.Lock()
	defer d.cqMu.Unlock()
	_, tier, ok := d.cqStore.Get(cqNum)
	return tier, ok
}

// GetMRInfo returns a read-through snapshot of lkey across tiers.
func (d *Device) GetMRInfo(lkey uint32) (MRValue, bool) {
	d.mrMu.Lock()
	defer d.mrMu.Unlock()
	v, _, ok := d.mrStore.Get(lkey)
	return v, ok
}

// GetPDInfo returns a read-through snapshot of pdHandle across tiers.
func (d *Device) GetPDInfo(pdHandle uint32) (PDValue, bool) {
	d.pdMu.Lock()
	defer d.pdMu.Unlock()
	v, _, ok := d.pdStore.Get(pdHandle)
	return v, ok
}

// AddPDResource records that handle (of the given kind) belongs to pdHandle.
func (d *Device) AddPDResource(pdHandle uint32, kind string, handle uint32) bool {
	d.pdMu.Lock()
	defer d.pdMu.Unlock()
	return d.pdStore.Mutate(pdHandle, func(p PDValue) PDValue {
		p.AddResource(kind, handle)
		return p
	})
}

// RemovePDResource forgets that handle (of the given kind) belongs to pdHandle.
func (d *Device) RemovePDResource(pdHandle uint32, kind string, handle uint32) bool {
	d.pdMu.Lock()
	defer d.pdMu.Unlock()
	return d.pdStore.Mutate(pdHandle, func(p PDValue) PDValue {
		p.RemoveResource(kind, handle)
		return p
	})
}

func (d *Device) validateTransition(current, next QPState) bool {
	if d.tuning.PermissiveTransitions() {
		return true
	}
	allowed, ok := canonicalTransitions[current]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == next {
			return true
		}
	}
	return false
}

var canonicalTransitions = map[QPState][]QPState{
	QPStateReset: {QPStateInit, QPStateErr},
	QPStateInit:  {QPStateRTR, QPStateErr},
	QPStateRTR:   {QPStateRTS, QPStateErr},
	QPStateRTS:   {QPStateSQD, QPStateSQE, QPStateErr},
	QPStateSQD:   {QPStateRTS, QPStateErr},
	QPStateSQE:   {QPStateRTS, QPStateErr},
	QPStateErr:   {QPStateReset},
}
