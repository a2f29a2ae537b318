// Package engine implements the core RDMA NIC simulation: the typed value
// model, the per-kind tiered residency stores, the verbs-level device state
// machine, and the process-wide queue-pair registry used to deliver two-sided
// operations between queue pairs that live on different devices.
package engine

import "time"

// Opcode identifies the kind of RDMA operation a work request performs.
type Opcode uint8

const (
	OpSend Opcode = iota
	OpRecv
	OpRDMAWrite
	OpRDMARead
	OpAtomicCmpAndSwap
	OpAtomicFetchAndAdd
)

func (o Opcode) String() string {
	switch o {
	case OpSend:
		return "SEND"
	case OpRecv:
		return "RECV"
	case OpRDMAWrite:
		return "RDMA_WRITE"
	case OpRDMARead:
		return "RDMA_READ"
	case OpAtomicCmpAndSwap:
		return "ATOMIC_CMP_AND_SWP"
	case OpAtomicFetchAndAdd:
		return "ATOMIC_FETCH_AND_ADD"
	default:
		return "UNKNOWN"
	}
}

// QPState is one of the canonical RC queue-pair lifecycle states.
type QPState uint8

const (
	QPStateReset QPState = iota
	QPStateInit
	QPStateRTR
	QPStateRTS
	QPStateSQD
	QPStateSQE
	QPStateErr
)

func (s QPState) String() string {
	switch s {
	case QPStateReset:
		return "RESET"
	case QPStateInit:
		return "INIT"
	case QPStateRTR:
		return "RTR"
	case QPStateRTS:
		return "RTS"
	case QPStateSQD:
		return "SQD"
	case QPStateSQE:
		return "SQE"
	case QPStateErr:
		return "ERR"
	default:
		return "UNKNOWN"
	}
}

// CompletionStatus distinguishes success from the simulator's synthetic
// error statuses.
type CompletionStatus uint32

const (
	// StatusSuccess is the zero value, matching verbs convention.
	StatusSuccess CompletionStatus = 0
	// StatusCQOverflow marks a completion synthesized when a CQ's declared
	// capacity was exceeded, in place of the dropped completion.
	StatusCQOverflow CompletionStatus = 1
)

// CompletionEntry is a single completion queue entry.
type CompletionEntry struct {
	WRID    uint64
	Status  CompletionStatus
	Opcode  Opcode
	Length  uint32
	ImmData uint32
}

// WorkRequest is a unit of I/O submitted to post_send/post_recv.
type WorkRequest struct {
	Opcode     Opcode
	LocalAddr  []byte
	LKey       uint32
	Length     uint32
	RemoteAddr uint64
	RKey       uint32
	ImmData    uint32
	Signaled   bool
	WRID       uint64
}

// MRAccessFlag is the access_flags bitset for registered memory.
type MRAccessFlag uint32

const (
	MRAccessLocalWrite  MRAccessFlag = 1 << 0
	MRAccessRemoteWrite MRAccessFlag = 1 << 1
	MRAccessRemoteRead  MRAccessFlag = 1 << 2
)

// QPValue is the rich per-queue-pair record tracked by the residency stores.
type QPValue struct {
	QPNum         uint32
	DestQPNum     uint32
	LID           uint16
	RemoteLID     uint16
	PortNum       uint8
	GID           [16]byte
	RemoteGID     [16]byte
	PSN           uint32
	RemotePSN     uint32
	AccessFlags   uint32
	MTU           uint32
	State         QPState
	SendCQ        uint32
	RecvCQ        uint32
	CreatedAt     time.Time
	RecvAddr      []byte
	RecvLength    uint32
	PendingData   []byte
}

// hasRecvBuffer reports whether a receive buffer is currently posted.
func (q *QPValue) hasRecvBuffer() bool {
	return q != nil && q.RecvAddr != nil
}

// CQValue is the completion-queue record: declared capacity plus a FIFO of
// completion entries.
type CQValue struct {
	CQNum       uint32
	CQE         uint32
	Completions []CompletionEntry
}

// MRValue is the registered-memory-region record. Addr is caller-owned; the
// simulator never frees it.
type MRValue struct {
	LKey   uint32
	Addr   []byte
	Length uint64
	Access uint32
}

// PDValue associates a protection domain handle with the resources it has
// been told about via AddResource/RemoveResource.
type PDValue struct {
	PDHandle  uint32
	Resources map[string][]uint32
}

func newPDValue(handle uint32) PDValue {
	return PDValue{PDHandle: handle, Resources: make(map[string][]uint32)}
}

// AddResource records a resource handle of the given kind under this PD.
func (p *PDValue) AddResource(kind string, handle uint32) {
	if p.Resources == nil {
		p.Resources = make(map[string][]uint32)
	}
	p.Resources[kind] = append(p.Resources[kind], handle)
}

// RemoveResource removes the first occurrence of handle under kind, if present.
func (p *PDValue) RemoveResource(kind string, handle uint32) {
	list := p.Resources[kind]
	for i, h := range list {
		if h == handle {
			p.Resources[kind] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// ControlMsgType enumerates the out-of-band handshake message kinds.
type ControlMsgType uint8

const (
	MsgConnectRequest ControlMsgType = iota
	MsgConnectResponse
	MsgReady
	MsgError
)

func (t ControlMsgType) String() string {
	switch t {
	case MsgConnectRequest:
		return "CONNECT_REQUEST"
	case MsgConnectResponse:
		return "CONNECT_RESPONSE"
	case MsgReady:
		return "READY"
	case MsgError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ControlMsg is one frame of the control-channel handshake protocol.
type ControlMsg struct {
	Type   ControlMsgType
	QPInfo QPValue
	Accept bool
	Err    string
}
