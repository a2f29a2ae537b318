// Package integration exercises rdma and control together, covering
// concrete end-to-end scenarios: PD lifecycle, CQ depth guard, QP state
// walk, loopback SEND, handshake, and residency spill.
package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/rnicsim/control"
	"github.com/example/rnicsim/internal/engine"
	"github.com/example/rnicsim/rdma"
)

func newDevice(t *testing.T, cfg rdma.Config) *rdma.Device {
	t.Helper()
	d := rdma.NewDevice(rdma.NewRegistry(), engine.NewTuning(), cfg)
	t.Cleanup(func() { d.Close() })
	return d
}

// Scenario 1: PD lifecycle.
func TestPDLifecycle(t *testing.T) {
	d := newDevice(t, rdma.Config{MaxPDs: 4})
	pd, err := d.CreatePD()
	require.NoError(t, err)
	require.GreaterOrEqual(t, pd.Handle(), uint32(1))

	require.NoError(t, pd.Destroy())
	// A second destroy of the same (now-absent) handle is a silent no-op,
	// matching destroy_pd(999) on a PD that never existed.
	require.NoError(t, pd.Destroy())
}

// Scenario 2: CQ depth guard.
func TestCQDepthGuard(t *testing.T) {
	d := newDevice(t, rdma.Config{MaxCQs: 4})
	cq, err := d.CreateCQ(16)
	require.NoError(t, err)
	require.GreaterOrEqual(t, cq.Handle(), uint32(1))

	_, err = d.CreateCQ(0)
	require.Error(t, err)
}

// Scenario 3: QP state walk.
func TestQPStateWalk(t *testing.T) {
	d := newDevice(t, rdma.Config{MaxQPs: 4, MaxCQs: 4})
	sendCQ, err := d.CreateCQ(16)
	require.NoError(t, err)
	recvCQ, err := d.CreateCQ(16)
	require.NoError(t, err)
	qp, err := d.CreateQP(rdma.QPInitAttr{MaxSendWR: 8, MaxRecvWR: 8, SendCQ: sendCQ, RecvCQ: recvCQ})
	require.NoError(t, err)

	for _, s := range []rdma.QPState{rdma.QPStateInit, rdma.QPStateRTR, rdma.QPStateRTS} {
		require.NoError(t, qp.Modify(s))
	}
	require.ErrorIs(t, qp.Modify(rdma.QPStateInit), rdma.ErrInvalidTransition)
}

// Scenario 4: loopback SEND.
func TestLoopbackSend(t *testing.T) {
	d := newDevice(t, rdma.Config{MaxQPs: 4, MaxCQs: 4})
	cq, err := d.CreateCQ(16)
	require.NoError(t, err)
	qp, err := d.CreateQP(rdma.QPInitAttr{MaxSendWR: 8, MaxRecvWR: 8, SendCQ: cq, RecvCQ: cq})
	require.NoError(t, err)

	for _, s := range []rdma.QPState{rdma.QPStateInit, rdma.QPStateRTR, rdma.QPStateRTS} {
		require.NoError(t, qp.Modify(s))
	}
	info, err := qp.Info()
	require.NoError(t, err)
	require.NoError(t, qp.Connect(rdma.QPInfo{QPNum: info.QPNum}))

	buf := make([]byte, 64)
	require.NoError(t, qp.PostRecv(rdma.WorkRequest{LocalAddr: buf, Length: 64}))

	payload := []byte("RDMA Reply!\x00")
	require.NoError(t, qp.PostSend(rdma.WorkRequest{
		Opcode: rdma.OpSend, LocalAddr: payload, Length: uint32(len(payload)), Signaled: true, WRID: 7,
	}))

	entries, err := cq.Poll(16)
	require.NoError(t, err)
	require.Len(t, entries, 2, "one send completion and one recv completion")

	send, recv := entries[0], entries[1]
	require.Equal(t, uint64(7), send.WRID)
	require.Equal(t, rdma.StatusSuccess, send.Status)
	require.Equal(t, uint32(len(payload)), send.Length)
	require.Equal(t, rdma.OpRecv, recv.Opcode)
	require.Equal(t, uint32(len(payload)), recv.Length)
	require.Equal(t, payload, buf[:len(payload)])
}

// Scenario 5: handshake.
func TestHandshakeConnectsBothEnds(t *testing.T) {
	logger := control.NewZapLogger(zap.NewNop())

	ln, err := control.Listen("tcp", "127.0.0.1:0", control.Config{Node: "server", Service: "it", Logger: logger})
	require.NoError(t, err)
	defer ln.Close()

	clientLocal := rdma.QPInfo{QPNum: 2000, LID: 1, PSN: 100}
	serverLocal := rdma.QPInfo{QPNum: 1000, LID: 2, PSN: 2000}

	type acceptResult struct {
		conn *control.Connection
		peer rdma.QPInfo
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		conn, peer, err := ln.Accept(5 * time.Second)
		accepted <- acceptResult{conn, peer, err}
	}()

	// Dial returns only once the CONNECT_RESPONSE arrives, so it runs
	// alongside the acceptor's Respond below.
	type dialResult struct {
		conn *control.Connection
		peer rdma.QPInfo
		err  error
	}
	dialed := make(chan dialResult, 1)
	go func() {
		conn, peer, err := control.Dial("tcp", ln.Addr().String(), control.Config{Node: "client", Service: "it", Logger: logger}, clientLocal)
		dialed <- dialResult{conn, peer, err}
	}()

	res := <-accepted
	require.NoError(t, res.err)
	serverConn := res.conn
	defer serverConn.Close()

	require.Equal(t, clientLocal.QPNum, res.peer.QPNum)
	require.Equal(t, clientLocal.LID, res.peer.LID)
	require.Equal(t, clientLocal.PSN, res.peer.PSN)

	require.NoError(t, serverConn.Respond(true, serverLocal))

	dres := <-dialed
	require.NoError(t, dres.err)
	clientConn, serverInfo := dres.conn, dres.peer
	defer clientConn.Close()

	require.Equal(t, serverLocal.QPNum, serverInfo.QPNum)
	require.Equal(t, serverLocal.LID, serverInfo.LID)
	require.Equal(t, serverLocal.PSN, serverInfo.PSN)

	doneClient := make(chan error, 1)
	go func() { doneClient <- clientConn.CompleteHandshake(5 * time.Second) }()
	require.NoError(t, serverConn.CompleteHandshake(5*time.Second))
	require.NoError(t, <-doneClient)

	require.Equal(t, control.StateConnected, serverConn.State())
	require.Equal(t, control.StateConnected, clientConn.State())
	require.NotEmpty(t, clientConn.PeerAddress())
	require.NotEmpty(t, serverConn.PeerAddress())
}

// Scenario 6: residency spill. A device advertising zero device-tier
// capacity for QPs and CQs still completes a signaled post_send, because
// the residency store spills to the middle cache / host-swap tier.
func TestResidencySpillStillDeliversCompletions(t *testing.T) {
	d := newDevice(t, rdma.Config{MaxQPs: 0, MaxCQs: 0})

	cq, err := d.CreateCQ(16)
	require.NoError(t, err)
	qp, err := d.CreateQP(rdma.QPInitAttr{MaxSendWR: 8, MaxRecvWR: 8, SendCQ: cq, RecvCQ: cq})
	require.NoError(t, err)

	for _, s := range []rdma.QPState{rdma.QPStateInit, rdma.QPStateRTR, rdma.QPStateRTS} {
		require.NoError(t, qp.Modify(s))
	}
	info, err := qp.Info()
	require.NoError(t, err)
	require.NoError(t, qp.Connect(rdma.QPInfo{QPNum: info.QPNum}))

	qpTier, ok := d.QPTier(qp.Handle())
	require.True(t, ok)
	require.NotEqual(t, rdma.TierDevice, qpTier, "qp should have spilled past the zero-capacity device tier")

	cqTier, ok := d.CQTier(cq.Handle())
	require.True(t, ok)
	require.NotEqual(t, rdma.TierDevice, cqTier, "cq should have spilled past the zero-capacity device tier")

	buf := make([]byte, 16)
	require.NoError(t, qp.PostRecv(rdma.WorkRequest{LocalAddr: buf, Length: 16}))
	payload := []byte("spilled")
	require.NoError(t, qp.PostSend(rdma.WorkRequest{Opcode: rdma.OpSend, LocalAddr: payload, Length: uint32(len(payload)), Signaled: true}))

	entries, err := cq.Poll(16)
	require.NoError(t, err)
	require.NotEmpty(t, entries, "poll_cq should still surface completions when the device tier has zero capacity")
}
