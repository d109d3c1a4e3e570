package pipeline

import (
	"encoding/binary"
	"io"
)

// FrameDecoder reads length-prefixed frames: a 4-byte big-endian length at
// offset 0 followed by that many payload bytes. The prefix is stripped.
type FrameDecoder struct {
	r   io.Reader
	max int64
	hdr [LengthFieldSize]byte
}

// NewFrameDecoder returns a decoder that rejects frames whose total size,
// prefix included, exceeds maxFrameLength.
func NewFrameDecoder(r io.Reader, maxFrameLength int64) *FrameDecoder {
	return &FrameDecoder{r: r, max: maxFrameLength}
}

// MaxFrameLength returns the largest accepted frame, prefix included.
func (d *FrameDecoder) MaxFrameLength() int64 {
	return d.max
}

// Next returns the payload of the next frame. It returns io.EOF when the
// stream ends cleanly between frames and *FrameTooLargeError when a frame
// exceeds the limit; the oversized payload is not read.
func (d *FrameDecoder) Next() ([]byte, error) {
	if _, err := io.ReadFull(d.r, d.hdr[:]); err != nil {
		return nil, err
	}
	length := int64(binary.BigEndian.Uint32(d.hdr[:]))
	if frame := length + LengthFieldSize; frame > d.max {
		return nil, &FrameTooLargeError{Length: frame, Max: d.max}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
