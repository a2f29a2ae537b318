// Command handshake-demo drives two simulated queue pairs through the
// connection protocol: RESET -> INIT, a CONNECT_REQUEST / CONNECT_RESPONSE
// exchange over the control channel, RTR -> RTS on both sides, and a
// closing READY / READY handshake.
//
// With no flags it runs both peers in one process, connected over a loopback
// TCP control channel. With -listen or -dial it runs one side of a genuine
// two-process handshake against a separately invoked peer.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/example/rnicsim/control"
	"github.com/example/rnicsim/internal/engine"
	"github.com/example/rnicsim/rdma"
)

func main() {
	listenAddr := flag.String("listen", "", "bind and accept an incoming handshake on this address (acceptor side of a two-process run)")
	dialAddr := flag.String("dial", "", "dial a peer's -listen address and drive the handshake as the initiator")
	flag.Parse()

	zapLogger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer zapLogger.Sync()
	logger := control.NewZapLogger(zapLogger)

	switch {
	case *listenAddr != "":
		runAcceptor(*listenAddr, logger)
	case *dialAddr != "":
		runDialer(*dialAddr, logger)
	default:
		runLoopback(logger)
	}
}

// newInitQP creates a queue pair and drives it to INIT, per step 3 of the
// connection protocol ("A's QPValue (local QP in RESET / INIT)").
func newInitQP(device *rdma.Device) *rdma.QueuePair {
	sendCQ, err := device.CreateCQ(64)
	if err != nil {
		log.Fatalf("create send cq: %v", err)
	}
	recvCQ, err := device.CreateCQ(64)
	if err != nil {
		log.Fatalf("create recv cq: %v", err)
	}
	qp, err := device.CreateQP(rdma.QPInitAttr{MaxSendWR: 64, MaxRecvWR: 64, SendCQ: sendCQ, RecvCQ: recvCQ})
	if err != nil {
		log.Fatalf("create qp: %v", err)
	}
	if err := qp.Modify(rdma.QPStateInit); err != nil {
		log.Fatalf("modify qp to init: %v", err)
	}
	return qp
}

func qpInfo(qp *rdma.QueuePair) rdma.QPInfo {
	info, err := qp.Info()
	if err != nil {
		log.Fatalf("qp info: %v", err)
	}
	return info
}

// driveToRTS implements step 7: both parties transition INIT -> RTR -> RTS
// once they hold the counterpart's connection parameters.
func driveToRTS(qp *rdma.QueuePair, remote rdma.QPInfo) {
	if err := qp.Connect(remote); err != nil {
		log.Fatalf("connect_qp: %v", err)
	}
	if err := qp.Modify(rdma.QPStateRTR); err != nil {
		log.Fatalf("modify qp to rtr: %v", err)
	}
	if err := qp.Modify(rdma.QPStateRTS); err != nil {
		log.Fatalf("modify qp to rts: %v", err)
	}
}

func runLoopback(logger control.Logger) {
	registry := rdma.NewRegistry()
	tuning := engine.NewTuning()
	deviceA := rdma.NewDevice(registry, tuning, rdma.DefaultConfig())
	deviceB := rdma.NewDevice(registry, tuning, rdma.DefaultConfig())
	defer deviceA.Close()
	defer deviceB.Close()

	ln, err := control.Listen("tcp", "127.0.0.1:0", control.Config{Node: "B", Service: "rnicsim-handshake", Logger: logger})
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	qpA := newInitQP(deviceA)
	qpB := newInitQP(deviceB)

	type acceptResult struct {
		conn *control.Connection
		peer rdma.QPInfo
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		conn, peer, err := ln.Accept(10 * time.Second)
		accepted <- acceptResult{conn, peer, err}
	}()

	// Dial returns only once B's CONNECT_RESPONSE arrives, so it runs
	// alongside B's Respond.
	dialed := make(chan acceptResult, 1)
	go func() {
		conn, peer, err := control.Dial("tcp", ln.Addr().String(), control.Config{Node: "A", Service: "rnicsim-handshake", Logger: logger}, qpInfo(qpA))
		dialed <- acceptResult{conn, peer, err}
	}()

	res := <-accepted
	if res.err != nil {
		log.Fatalf("accept: %v", res.err)
	}
	acceptConn := res.conn
	defer acceptConn.Close()

	driveToRTS(qpB, res.peer)
	if err := acceptConn.Respond(true, qpInfo(qpB)); err != nil {
		log.Fatalf("respond: %v", err)
	}

	dres := <-dialed
	if dres.err != nil {
		log.Fatalf("dial: %v", dres.err)
	}
	dialConn, respFromB := dres.conn, dres.peer
	defer dialConn.Close()

	driveToRTS(qpA, respFromB)

	doneA := make(chan error, 1)
	go func() { doneA <- dialConn.CompleteHandshake(10 * time.Second) }()
	if err := acceptConn.CompleteHandshake(10 * time.Second); err != nil {
		log.Fatalf("B: complete handshake: %v", err)
	}
	if err := <-doneA; err != nil {
		log.Fatalf("A: complete handshake: %v", err)
	}

	fmt.Printf("loopback handshake complete: A qp_num=%d state=%s, B qp_num=%d state=%s\n",
		qpInfo(qpA).QPNum, qpInfo(qpA).State, qpInfo(qpB).QPNum, qpInfo(qpB).State)
}

func runAcceptor(addr string, logger control.Logger) {
	registry := rdma.NewRegistry()
	device := rdma.NewDevice(registry, engine.NewTuning(), rdma.DefaultConfig())
	defer device.Close()

	qp := newInitQP(device)

	ln, err := control.Listen("tcp", addr, control.Config{Node: "acceptor", Service: "rnicsim-handshake", Logger: logger})
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	fmt.Printf("listening on %s\n", ln.Addr())

	conn, peer, err := ln.Accept(60 * time.Second)
	if err != nil {
		log.Fatalf("accept: %v", err)
	}
	defer conn.Close()

	driveToRTS(qp, peer)
	if err := conn.Respond(true, qpInfo(qp)); err != nil {
		log.Fatalf("respond: %v", err)
	}
	if err := conn.CompleteHandshake(30 * time.Second); err != nil {
		log.Fatalf("complete handshake: %v", err)
	}

	fmt.Printf("acceptor: handshake complete, local qp_num=%d remote qp_num=%d state=%s\n",
		qpInfo(qp).QPNum, qpInfo(qp).DestQPNum, qpInfo(qp).State)
}

func runDialer(addr string, logger control.Logger) {
	registry := rdma.NewRegistry()
	device := rdma.NewDevice(registry, engine.NewTuning(), rdma.DefaultConfig())
	defer device.Close()

	qp := newInitQP(device)

	conn, remote, err := control.Dial("tcp", addr, control.Config{Node: "initiator", Service: "rnicsim-handshake", Logger: logger}, qpInfo(qp))
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	driveToRTS(qp, remote)
	if err := conn.CompleteHandshake(30 * time.Second); err != nil {
		log.Fatalf("complete handshake: %v", err)
	}

	fmt.Printf("dialer: handshake complete, local qp_num=%d remote qp_num=%d state=%s\n",
		qpInfo(qp).QPNum, qpInfo(qp).DestQPNum, qpInfo(qp).State)
}
