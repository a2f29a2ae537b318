// Package rdma is the public verbs-style wrapper around the simulated RDMA
// NIC in internal/engine: protection domains, completion queues, queue
// pairs, and memory regions, each a small handle type wrapping a raw
// uint32 and a back-pointer to its owning Device, in the shape the fi
// package wraps capi handles.
package rdma

import "github.com/example/rnicsim/internal/engine"

// Opcode identifies the kind of RDMA operation a work request performs.
type Opcode = engine.Opcode

const (
	OpSend              = engine.OpSend
	OpRecv              = engine.OpRecv
	OpRDMAWrite         = engine.OpRDMAWrite
	OpRDMARead          = engine.OpRDMARead
	OpAtomicCmpAndSwap  = engine.OpAtomicCmpAndSwap
	OpAtomicFetchAndAdd = engine.OpAtomicFetchAndAdd
)

// QPState is one of the canonical RC queue-pair lifecycle states.
type QPState = engine.QPState

const (
	QPStateReset = engine.QPStateReset
	QPStateInit  = engine.QPStateInit
	QPStateRTR   = engine.QPStateRTR
	QPStateRTS   = engine.QPStateRTS
	QPStateSQD   = engine.QPStateSQD
	QPStateSQE   = engine.QPStateSQE
	QPStateErr   = engine.QPStateErr
)

// CompletionStatus distinguishes success from a synthetic error status.
type CompletionStatus = engine.CompletionStatus

const (
	StatusSuccess    = engine.StatusSuccess
	StatusCQOverflow = engine.StatusCQOverflow
)

// CompletionEntry is a single completion queue entry.
type CompletionEntry = engine.CompletionEntry

// WorkRequest is a unit of I/O submitted to PostSend/PostRecv.
type WorkRequest = engine.WorkRequest

// MRAccessFlag mirrors the access_flags bitset for registered memory.
type MRAccessFlag = engine.MRAccessFlag

const (
	MRAccessLocalWrite  = engine.MRAccessLocalWrite
	MRAccessRemoteWrite = engine.MRAccessRemoteWrite
	MRAccessRemoteRead  = engine.MRAccessRemoteRead
)

// QPInfo is a read snapshot of a queue pair's connection and state fields,
// returned by QueuePair.Info and accepted by QueuePair.Connect.
type QPInfo = engine.QPValue

// Tier identifies which residency tier currently backs a resource.
type Tier = engine.Tier

const (
	TierDevice = engine.TierDevice
	TierMiddle = engine.TierMiddle
	TierHost   = engine.TierHost
)

// Registry is the process-wide queue-pair registry shared by every Device
// that should be able to deliver two-sided operations to one another.
type Registry = engine.Registry

// NewRegistry constructs an empty process-wide queue-pair registry.
func NewRegistry() *Registry {
	return engine.NewRegistry()
}
