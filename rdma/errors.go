package rdma

import "errors"

// ErrInvalidHandle indicates a nil, closed, or already-destroyed resource handle.
type ErrInvalidHandle struct {
	Resource string
}

func (e ErrInvalidHandle) Error() string {
	return "rnicsim: invalid or closed " + e.Resource + " handle"
}

var (
	// ErrCreateFailed indicates a create_* verb returned handle 0.
	ErrCreateFailed = errors.New("rnicsim: resource creation failed")
	// ErrInvalidTransition indicates modify_qp_state rejected the requested transition.
	ErrInvalidTransition = errors.New("rnicsim: invalid queue pair state transition")
	// ErrNotConnected indicates an operation required a destination queue pair that was never set via Connect.
	ErrNotConnected = errors.New("rnicsim: queue pair not connected")
	// ErrPostFailed indicates post_send/post_recv rejected the work request.
	ErrPostFailed = errors.New("rnicsim: work request rejected")
)
