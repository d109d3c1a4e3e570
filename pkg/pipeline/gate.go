package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// Gate controls whether a channel reads from its connection. It starts
// closed and can only be opened, once.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// NewGate returns a closed gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open opens the gate. Later calls do nothing.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}

// IsOpen reports whether Open has been called.
func (g *Gate) IsOpen() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// Opened is closed when the gate opens.
func (g *Gate) Opened() <-chan struct{} {
	return g.ch
}

// Wait blocks until the gate opens or ctx is done. In the latter case the
// returned error wraps both ErrGateClosed and the context error.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		select {
		case <-g.ch:
			return nil
		default:
		}
		return fmt.Errorf("%w: %w", ErrGateClosed, ctx.Err())
	}
}
