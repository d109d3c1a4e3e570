package pipeline

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
)

// LengthFieldSize is the size of the big-endian length prefix.
const LengthFieldSize = 4

// FrameEncoder writes length-prefixed frames. Over plain connections the
// prefix, header and payload are handed to the writer as separate buffers;
// over TLS they are copied into one buffer so a frame becomes one record.
type FrameEncoder struct {
	mu  sync.Mutex
	w   io.Writer
	tls bool
}

// NewFrameEncoder returns an encoder writing to w.
func NewFrameEncoder(w io.Writer, tlsActive bool) *FrameEncoder {
	return &FrameEncoder{w: w, tls: tlsActive}
}

// TLSActive reports whether the encoder writes into a TLS engine.
func (e *FrameEncoder) TLSActive() bool {
	return e.tls
}

// WriteFrame writes a single frame.
func (e *FrameEncoder) WriteFrame(payload []byte) error {
	return e.WritePair(nil, payload)
}

// WritePair writes header and payload as one frame whose length covers both.
func (e *FrameEncoder) WritePair(header, payload []byte) error {
	n := len(header) + len(payload)
	if uint64(n) > math.MaxUint32 {
		return fmt.Errorf("frame of %d bytes cannot be length-prefixed", n)
	}

	var prefix [LengthFieldSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(n))

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.tls {
		buf := make([]byte, 0, LengthFieldSize+n)
		buf = append(buf, prefix[:]...)
		buf = append(buf, header...)
		buf = append(buf, payload...)
		_, err := e.w.Write(buf)
		return err
	}

	bufs := net.Buffers{prefix[:]}
	if len(header) > 0 {
		bufs = append(bufs, header)
	}
	if len(payload) > 0 {
		bufs = append(bufs, payload)
	}
	_, err := bufs.WriteTo(e.w)
	return err
}
