package rdma

// QueuePair wraps a queue pair handle.
type QueuePair struct {
	device *Device
	handle uint32
}

// Handle returns the raw qp_num value.
func (q *QueuePair) Handle() uint32 {
	if q == nil {
		return 0
	}
	return q.handle
}

// Modify transitions the queue pair to newState.
func (q *QueuePair) Modify(newState QPState) error {
	if q == nil || q.device == nil || q.device.eng == nil {
		return ErrInvalidHandle{"queue pair"}
	}
	if !q.device.eng.ModifyQPState(q.handle, newState) {
		return ErrInvalidTransition
	}
	return nil
}

// Connect copies the remote peer's connection parameters, obtained from the
// remote side's Info, into this queue pair's record.
func (q *QueuePair) Connect(remote QPInfo) error {
	if q == nil || q.device == nil || q.device.eng == nil {
		return ErrInvalidHandle{"queue pair"}
	}
	if !q.device.eng.ConnectQP(q.handle, remote) {
		return ErrInvalidHandle{"queue pair"}
	}
	return nil
}

// PostSend submits a send-side work request.
func (q *QueuePair) PostSend(wr WorkRequest) error {
	if q == nil || q.device == nil || q.device.eng == nil {
		return ErrInvalidHandle{"queue pair"}
	}
	if !q.device.eng.PostSend(q.handle, wr) {
		return ErrPostFailed
	}
	q.device.metricSendPosted(wr.Opcode.String())
	return nil
}

// PostRecv posts a receive buffer.
func (q *QueuePair) PostRecv(wr WorkRequest) error {
	if q == nil || q.device == nil || q.device.eng == nil {
		return ErrInvalidHandle{"queue pair"}
	}
	if !q.device.eng.PostRecv(q.handle, wr) {
		return ErrPostFailed
	}
	q.device.metricRecvPosted()
	return nil
}

// Info returns a read snapshot of the queue pair's state and connection fields.
func (q *QueuePair) Info() (QPInfo, error) {
	if q == nil || q.device == nil || q.device.eng == nil {
		return QPInfo{}, ErrInvalidHandle{"queue pair"}
	}
	v, ok := q.device.eng.GetQPInfo(q.handle)
	if !ok {
		return QPInfo{}, ErrInvalidHandle{"queue pair"}
	}
	return v, nil
}

// Destroy releases the queue pair and removes it from the process-wide registry.
func (q *QueuePair) Destroy() error {
	if q == nil || q.device == nil || q.device.eng == nil {
		return ErrInvalidHandle{"queue pair"}
	}
	q.device.eng.DestroyQP(q.handle)
	q.device.metricResourceDestroyed("qp")
	return nil
}
