// Package control implements the out-of-band handshake that drives two
// simulated queue pairs from RESET through RTS: a length-prefixed framed
// wire protocol over a reliable stream transport, and the four-message
// CONNECT_REQUEST / CONNECT_RESPONSE / READY / READY connection protocol
// that carries QPValue payloads between peers.
package control

import (
	"github.com/google/uuid"

	"github.com/example/rnicsim/internal/engine"
)

// MsgType enumerates the handshake frame kinds.
type MsgType = engine.ControlMsgType

const (
	MsgConnectRequest  = engine.MsgConnectRequest
	MsgConnectResponse = engine.MsgConnectResponse
	MsgReady           = engine.MsgReady
	MsgError           = engine.MsgError
)

// Msg is one frame of the handshake protocol.
type Msg = engine.ControlMsg

// QPInfo is the connection-parameter payload carried by CONNECT_REQUEST and
// CONNECT_RESPONSE frames.
type QPInfo = engine.QPValue

// ConnectionID correlates a single accepted or dialed connection across
// logs, traces, and metrics.
type ConnectionID uuid.UUID

func newConnectionID() ConnectionID {
	return ConnectionID(uuid.New())
}

func (id ConnectionID) String() string {
	return uuid.UUID(id).String()
}
