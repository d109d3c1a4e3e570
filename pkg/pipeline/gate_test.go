package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGate(t *testing.T) {
	g := NewGate()
	if g.IsOpen() {
		t.Fatal("new gate should be closed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx)
	if !errors.Is(err, ErrGateClosed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() on closed gate = %v", err)
	}

	g.Open()
	g.Open()
	if !g.IsOpen() {
		t.Fatal("gate should be open")
	}
	if err := g.Wait(context.Background()); err != nil {
		t.Errorf("Wait() on open gate = %v", err)
	}
	select {
	case <-g.Opened():
	default:
		t.Error("Opened() not closed after Open")
	}
}

func TestGate_WaitUnblocksOnOpen(t *testing.T) {
	g := NewGate()
	done := make(chan error, 1)
	go func() { done <- g.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Wait returned before Open")
	case <-time.After(20 * time.Millisecond):
	}

	g.Open()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Open")
	}
}
