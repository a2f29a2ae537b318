package engine

import "testing"

func newTestDevice() *Device {
	return NewDevice(NewRegistry(), NewTuning(), Config{MaxQPs: 4, MaxCQs: 4, MaxMRs: 4, MaxPDs: 4})
}

func TestPDCreateDestroyAndResources(t *testing.T) {
	d := newTestDevice()
	defer d.Close()

	pd := d.CreatePD()
	if pd == 0 {
		t.Fatal("CreatePD should never fail")
	}

	if !d.AddPDResource(pd, "mr", 7) {
		t.Fatal("AddPDResource on a live PD should succeed")
	}
	info, ok := d.GetPDInfo(pd)
	if !ok || len(info.Resources["mr"]) != 1 || info.Resources["mr"][0] != 7 {
		t.Fatalf("GetPDInfo = %+v, %v; want resource 7 recorded", info, ok)
	}

	if !d.RemovePDResource(pd, "mr", 7) {
		t.Fatal("RemovePDResource on a live PD should succeed")
	}
	info, _ = d.GetPDInfo(pd)
	if len(info.Resources["mr"]) != 0 {
		t.Fatalf("resource list = %v, want empty after removal", info.Resources["mr"])
	}

	d.DestroyPD(pd)
	if _, ok := d.GetPDInfo(pd); ok {
		t.Fatal("GetPDInfo after DestroyPD should fail")
	}
}

func TestCreateCQRejectsZeroCapacity(t *testing.T) {
	d := newTestDevice()
	defer d.Close()
	if cq := d.CreateCQ(0); cq != 0 {
		t.Fatalf("CreateCQ(0) = %d, want 0", cq)
	}
}

func TestCreateQPRequiresValidCQs(t *testing.T) {
	d := newTestDevice()
	defer d.Close()

	if qp := d.CreateQP(16, 16, 999, 999); qp != 0 {
		t.Fatalf("CreateQP with unknown CQs = %d, want 0", qp)
	}

	sendCQ := d.CreateCQ(16)
	recvCQ := d.CreateCQ(16)
	qp := d.CreateQP(16, 16, sendCQ, recvCQ)
	if qp == 0 {
		t.Fatal("CreateQP with valid CQs should succeed")
	}
	info, ok := d.GetQPInfo(qp)
	if !ok || info.State != QPStateReset {
		t.Fatalf("GetQPInfo = %+v, %v; want fresh QP in RESET", info, ok)
	}
}

func TestRegisterMRRejectsNilBuffer(t *testing.T) {
	d := newTestDevice()
	defer d.Close()
	if lkey := d.RegisterMR(nil, uint32(MRAccessLocalWrite)); lkey != 0 {
		t.Fatalf("RegisterMR(nil) = %d, want 0", lkey)
	}
	buf := make([]byte, 64)
	lkey := d.RegisterMR(buf, uint32(MRAccessLocalWrite))
	if lkey == 0 {
		t.Fatal("RegisterMR with a real buffer should succeed")
	}
}

func TestModifyQPStateCanonicalTransitions(t *testing.T) {
	d := newTestDevice()
	defer d.Close()
	sendCQ := d.CreateCQ(16)
	recvCQ := d.CreateCQ(16)
	qp := d.CreateQP(16, 16, sendCQ, recvCQ)

	if d.ModifyQPState(qp, QPStateRTR) {
		t.Fatal("RESET -> RTR should be rejected by the canonical validator")
	}
	if !d.ModifyQPState(qp, QPStateInit) {
		t.Fatal("RESET -> INIT should be allowed")
	}
	if !d.ModifyQPState(qp, QPStateRTR) {
		t.Fatal("INIT -> RTR should be allowed")
	}
	if !d.ModifyQPState(qp, QPStateRTS) {
		t.Fatal("RTR -> RTS should be allowed")
	}
}

func TestModifyQPStatePermissiveAcceptsAnyTransition(t *testing.T) {
	d := newTestDevice()
	defer d.Close()
	d.tuning.SetPermissiveTransitions(true)
	sendCQ := d.CreateCQ(16)
	recvCQ := d.CreateCQ(16)
	qp := d.CreateQP(16, 16, sendCQ, recvCQ)

	if !d.ModifyQPState(qp, QPStateRTS) {
		t.Fatal("RESET -> RTS should be allowed once permissive transitions are enabled")
	}
}

func bringUpLoopbackQP(t *testing.T, d *Device) (qp, sendCQ, recvCQ uint32) {
	t.Helper()
	sendCQ = d.CreateCQ(16)
	recvCQ = d.CreateCQ(16)
	qp = d.CreateQP(16, 16, sendCQ, recvCQ)
	for _, s := range []QPState{QPStateInit, QPStateRTR, QPStateRTS} {
		if !d.ModifyQPState(qp, s) {
			t.Fatalf("ModifyQPState(%v) failed", s)
		}
	}
	return qp, sendCQ, recvCQ
}

func TestPostSendLoopbackWithPriorPostRecv(t *testing.T) {
	d := newTestDevice()
	defer d.Close()
	qpA, sendCQ, recvCQA := bringUpLoopbackQP(t, d)

	// A self-connected loopback QP: dest_qp_num points at itself.
	d.ConnectQP(qpA, QPValue{QPNum: qpA})

	recvBuf := make([]byte, 16)
	if !d.PostRecv(qpA, WorkRequest{LocalAddr: recvBuf, Length: uint32(len(recvBuf))}) {
		t.Fatal("PostRecv should succeed on an RTS QP")
	}

	payload := []byte("hello, rdma")
	if !d.PostSend(qpA, WorkRequest{Opcode: OpSend, LocalAddr: payload, Length: uint32(len(payload)), Signaled: true, WRID: 42}) {
		t.Fatal("PostSend should succeed on an RTS QP")
	}

	sendCompletions, ok := d.PollCQ(sendCQ, 10)
	if !ok || len(sendCompletions) != 1 || sendCompletions[0].WRID != 42 {
		t.Fatalf("send completions = %+v, %v; want one completion WRID=42", sendCompletions, ok)
	}

	recvCompletions, ok := d.PollCQ(recvCQA, 10)
	if !ok || len(recvCompletions) != 1 {
		t.Fatalf("recv completions = %+v, %v; want one completion", recvCompletions, ok)
	}
	if string(recvBuf[:len(payload)]) != string(payload) {
		t.Fatalf("recvBuf = %q, want %q", recvBuf[:len(payload)], payload)
	}
}

func TestPostSendStagesPendingDataWithoutPriorRecv(t *testing.T) {
	d := newTestDevice()
	defer d.Close()
	qpA, _, recvCQA := bringUpLoopbackQP(t, d)
	d.ConnectQP(qpA, QPValue{QPNum: qpA})

	payload := []byte("staged")
	if !d.PostSend(qpA, WorkRequest{Opcode: OpSend, LocalAddr: payload, Length: uint32(len(payload))}) {
		t.Fatal("PostSend should succeed even with no receive buffer posted")
	}

	recvBuf := make([]byte, 16)
	if !d.PostRecv(qpA, WorkRequest{LocalAddr: recvBuf, Length: uint32(len(recvBuf))}) {
		t.Fatal("PostRecv should drain the staged payload immediately")
	}

	completions, ok := d.PollCQ(recvCQA, 10)
	if !ok || len(completions) != 1 {
		t.Fatalf("recv completions = %+v, %v; want one completion from drained pending data", completions, ok)
	}
	if string(recvBuf[:len(payload)]) != string(payload) {
		t.Fatalf("recvBuf = %q, want %q", recvBuf[:len(payload)], payload)
	}
}

func TestPostSendOverwritesPendingDataUnconditionally(t *testing.T) {
	d := newTestDevice()
	defer d.Close()
	qpA, _, _ := bringUpLoopbackQP(t, d)
	d.ConnectQP(qpA, QPValue{QPNum: qpA})

	d.PostSend(qpA, WorkRequest{Opcode: OpSend, LocalAddr: []byte("first"), Length: 5})
	d.PostSend(qpA, WorkRequest{Opcode: OpSend, LocalAddr: []byte("second"), Length: 6})

	v, ok := d.GetQPInfo(qpA)
	if !ok || string(v.PendingData) != "second" {
		t.Fatalf("PendingData = %q, %v; want unconditional overwrite to %q", v.PendingData, ok, "second")
	}
}

func TestPostSendAcrossDevicesViaSharedRegistry(t *testing.T) {
	registry := NewRegistry()
	tuning := NewTuning()
	dA := NewDevice(registry, tuning, Config{MaxQPs: 4, MaxCQs: 4})
	dB := NewDevice(registry, tuning, Config{MaxQPs: 4, MaxCQs: 4})
	defer dA.Close()
	defer dB.Close()

	sendCQA := dA.CreateCQ(16)
	recvCQA := dA.CreateCQ(16)
	qpA := dA.CreateQP(16, 16, sendCQA, recvCQA)

	sendCQB := dB.CreateCQ(16)
	recvCQB := dB.CreateCQ(16)
	qpB := dB.CreateQP(16, 16, sendCQB, recvCQB)

	for _, s := range []QPState{QPStateInit, QPStateRTR, QPStateRTS} {
		dA.ModifyQPState(qpA, s)
		dB.ModifyQPState(qpB, s)
	}
	dA.ConnectQP(qpA, QPValue{QPNum: qpB})
	dB.ConnectQP(qpB, QPValue{QPNum: qpA})

	recvBuf := make([]byte, 16)
	dB.PostRecv(qpB, WorkRequest{LocalAddr: recvBuf, Length: uint32(len(recvBuf))})

	payload := []byte("cross device")
	if !dA.PostSend(qpA, WorkRequest{Opcode: OpSend, LocalAddr: payload, Length: uint32(len(payload)), Signaled: true}) {
		t.Fatal("cross-device PostSend should succeed")
	}

	completions, ok := dB.PollCQ(recvCQB, 10)
	if !ok || len(completions) != 1 {
		t.Fatalf("remote recv completions = %+v, %v; want one completion", completions, ok)
	}
	if string(recvBuf[:len(payload)]) != string(payload) {
		t.Fatalf("recvBuf = %q, want %q", recvBuf[:len(payload)], payload)
	}
}

func TestDestroyQPErasesRegistryEntry(t *testing.T) {
	registry := NewRegistry()
	d := NewDevice(registry, NewTuning(), Config{MaxQPs: 4, MaxCQs: 4})
	defer d.Close()

	sendCQ := d.CreateCQ(16)
	recvCQ := d.CreateCQ(16)
	qp := d.CreateQP(16, 16, sendCQ, recvCQ)
	d.ModifyQPState(qp, QPStateInit)
	d.ModifyQPState(qp, QPStateRTR)
	d.ModifyQPState(qp, QPStateRTS)
	d.PostSend(qp, WorkRequest{Opcode: OpRDMARead}) // registers qp in the registry

	if _, ok := registry.Lookup(qp); !ok {
		t.Fatal("qp should be registered after a post_send call")
	}

	d.DestroyQP(qp)

	if _, ok := registry.Lookup(qp); ok {
		t.Fatal("qp should no longer resolve in the registry after DestroyQP")
	}
	if _, ok := d.GetQPInfo(qp); ok {
		t.Fatal("qp should no longer be resident after DestroyQP")
	}
}
