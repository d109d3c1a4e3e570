package pipeline

import (
	"io"
	"net"
	"testing"
	"time"
)

func TestConsolidatingConn(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := newConsolidatingConn(server, ConsolidationBufferSize)
	defer c.Close()

	for i := 0; i < 10; i++ {
		if _, err := c.Write([]byte("0123456789")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if c.Buffered() != 100 {
		t.Fatalf("Buffered() = %d, want 100", c.Buffered())
	}

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 100)
		_, _ = io.ReadFull(client, buf)
		received <- buf
	}()

	select {
	case <-received:
		t.Fatal("bytes reached the peer before a flush")
	case <-time.After(20 * time.Millisecond):
	}

	if err := c.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	select {
	case buf := <-received:
		if string(buf[:10]) != "0123456789" {
			t.Errorf("unexpected bytes %q", buf[:10])
		}
	case <-time.After(time.Second):
		t.Fatal("flushed bytes not received")
	}
}

func TestConsolidatingConn_FlushesBeforeRead(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := newConsolidatingConn(server, ConsolidationBufferSize)
	defer c.Close()

	if _, err := c.Write([]byte("ping")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	go func() {
		buf := make([]byte, 4)
		if _, err := io.ReadFull(client, buf); err == nil && string(buf) == "ping" {
			_, _ = client.Write([]byte("pong"))
		}
	}()

	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4)
	if _, err := io.ReadFull(c, buf); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(buf) != "pong" {
		t.Errorf("Read() = %q, want %q", buf, "pong")
	}
}

func TestConsolidatingConn_LargeWritePassesThrough(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := newConsolidatingConn(server, ConsolidationBufferSize)
	defer c.Close()

	big := make([]byte, 4*ConsolidationBufferSize)
	done := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(client, make([]byte, len(big)))
		done <- err
	}()

	if _, err := c.Write(big); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("peer read error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("large write was held back")
	}
}
