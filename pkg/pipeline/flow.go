package pipeline

import (
	"context"
	"sync"
)

// FlowController sits between the frame decoder and the handler. Decoded
// frames wait in a bounded queue; when it is full the reader blocks and
// stops pulling bytes from the connection. Frames are delivered one at a
// time, and only once the gate is open.
type FlowController struct {
	gate  *Gate
	queue chan []byte

	closeOnce sync.Once
}

// NewFlowController returns a controller with room for size frames.
func NewFlowController(gate *Gate, size int) *FlowController {
	if size <= 0 {
		size = 1
	}
	return &FlowController{
		gate:  gate,
		queue: make(chan []byte, size),
	}
}

// Push queues a frame, blocking while the queue is full.
func (f *FlowController) Push(ctx context.Context, frame []byte) error {
	select {
	case f.queue <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close marks the end of input. Run delivers what is queued and returns.
// Push must not be called after Close.
func (f *FlowController) Close() {
	f.closeOnce.Do(func() { close(f.queue) })
}

// Pending returns the number of queued frames.
func (f *FlowController) Pending() int {
	return len(f.queue)
}

// Run waits for the gate, then delivers frames in order until the queue is
// closed and drained, deliver fails, or ctx is done.
func (f *FlowController) Run(ctx context.Context, deliver func([]byte) error) error {
	if err := f.gate.Wait(ctx); err != nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-f.queue:
			if !ok {
				return nil
			}
			if err := deliver(frame); err != nil {
				return err
			}
		}
	}
}
