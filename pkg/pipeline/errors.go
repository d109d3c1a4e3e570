package pipeline

import (
	"errors"
	"fmt"

	"github.com/jpillora/sizestr"
)

var (
	// ErrGateClosed is returned when waiting on a gate is abandoned before
	// the handler enabled reads.
	ErrGateClosed = errors.New("read gate closed")

	// ErrChannelClosed is returned by operations on a closed channel.
	ErrChannelClosed = errors.New("channel closed")

	// ErrTLSUnavailable is returned when a TLS listener has no initialized
	// TLS context to create engines from.
	ErrTLSUnavailable = errors.New("tls enabled but no initialized tls context")
)

// FrameTooLargeError is returned by the frame decoder when a frame,
// including its 4-byte length prefix, exceeds the maximum frame length.
type FrameTooLargeError struct {
	Length int64
	Max    int64
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("frame of %s exceeds maximum frame length %s (%d > %d bytes)",
		sizestr.ToString(e.Length), sizestr.ToString(e.Max), e.Length, e.Max)
}

// PipelineAssemblyError reports a stage that could not be attached.
type PipelineAssemblyError struct {
	Stage string
	Err   error
}

func (e *PipelineAssemblyError) Error() string {
	return fmt.Sprintf("failed to attach stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineAssemblyError) Unwrap() error {
	return e.Err
}
