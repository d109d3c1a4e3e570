package pipeline

import (
	"bufio"
	"net"
	"sync"
)

// ConsolidationBufferSize is the number of outbound bytes collected before
// they are written to the socket.
const ConsolidationBufferSize = 1024

// consolidatingConn batches small writes into fewer socket writes. Pending
// bytes are flushed when the buffer overflows, on Flush, before every read
// and on Close, so a peer waiting for a reply is never starved.
type consolidatingConn struct {
	net.Conn

	mu sync.Mutex
	bw *bufio.Writer
}

func newConsolidatingConn(conn net.Conn, size int) *consolidatingConn {
	return &consolidatingConn{
		Conn: conn,
		bw:   bufio.NewWriterSize(conn, size),
	}
}

func (c *consolidatingConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bw.Write(p)
}

func (c *consolidatingConn) Read(p []byte) (int, error) {
	if err := c.Flush(); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

// Flush writes any buffered bytes to the connection.
func (c *consolidatingConn) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bw.Flush()
}

// Buffered returns the number of bytes waiting to be flushed.
func (c *consolidatingConn) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bw.Buffered()
}

func (c *consolidatingConn) Close() error {
	_ = c.Flush()
	return c.Conn.Close()
}
