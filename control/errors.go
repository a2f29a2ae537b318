package control

import "errors"

var (
	// ErrClosed is returned by Connection send and receive operations once
	// the connection has entered the ERROR state.
	ErrClosed = errors.New("control: connection closed")
	// ErrTimeout is returned when a dial or accept attempt exhausts its
	// retries or deadline without completing the handshake.
	ErrTimeout = errors.New("control: handshake timed out")
	// ErrRejected is returned to the dialer when the listener's
	// CONNECT_RESPONSE carries accept=false.
	ErrRejected = errors.New("control: peer rejected connection request")
	// ErrHandshakeMismatch is returned when a peer sends a message type out
	// of sequence for the current handshake step.
	ErrHandshakeMismatch = errors.New("control: unexpected message type for handshake step")
)
