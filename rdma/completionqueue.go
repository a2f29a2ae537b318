package rdma

// CompletionQueue wraps a completion queue handle.
type CompletionQueue struct {
	device *Device
	handle uint32
}

// Handle returns the raw cq_num value.
func (c *CompletionQueue) Handle() uint32 {
	if c == nil {
		return 0
	}
	return c.handle
}

// Poll moves up to maxEntries FIFO-front completions out of the queue.
func (c *CompletionQueue) Poll(maxEntries uint32) ([]CompletionEntry, error) {
	if c == nil || c.device == nil || c.device.eng == nil {
		return nil, ErrInvalidHandle{"completion queue"}
	}
	entries, ok := c.device.eng.PollCQ(c.handle, maxEntries)
	if !ok {
		return nil, nil
	}
	for _, e := range entries {
		status := "success"
		if e.Status != StatusSuccess {
			status = "error"
		}
		c.device.metricCompletionPolled(status)
	}
	return entries, nil
}

// Info returns a read snapshot of the completion queue's declared capacity
// and currently queued entry count.
func (c *CompletionQueue) Info() (CQInfo, error) {
	if c == nil || c.device == nil || c.device.eng == nil {
		return CQInfo{}, ErrInvalidHandle{"completion queue"}
	}
	v, ok := c.device.eng.GetCQInfo(c.handle)
	if !ok {
		return CQInfo{}, ErrInvalidHandle{"completion queue"}
	}
	return CQInfo{CQNum: v.CQNum, CQE: v.CQE, Queued: uint32(len(v.Completions))}, nil
}

// CQInfo is a read snapshot of a completion queue's state.
type CQInfo struct {
	CQNum  uint32
	CQE    uint32
	Queued uint32
}

// Destroy releases the completion queue.
func (c *CompletionQueue) Destroy() error {
	if c == nil || c.device == nil || c.device.eng == nil {
		return ErrInvalidHandle{"completion queue"}
	}
	c.device.eng.DestroyCQ(c.handle)
	c.device.metricResourceDestroyed("cq")
	return nil
}
