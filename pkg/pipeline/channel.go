package pipeline

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pires/go-proxyproto"

	"mercator-hq/conduit/pkg/telemetry/logging"
)

// Handler is the terminal stage of a channel. ChannelActive is called once
// the connection is ready (after the TLS handshake, if any), HandleFrame
// once per decoded frame in arrival order, and ChannelInactive once when the
// channel is torn down. A Handler must call Channel.EnableReads before any
// frame is delivered.
type Handler interface {
	ChannelActive(ctx context.Context, ch *Channel) error
	HandleFrame(ctx context.Context, ch *Channel, frame []byte) error
	ChannelInactive(ch *Channel)
}

// HandlerFactory creates the handler for a new channel.
type HandlerFactory interface {
	Create(ch *Channel, listenerName string) (Handler, error)
}

// HandlerFactoryFunc adapts a function to HandlerFactory.
type HandlerFactoryFunc func(ch *Channel, listenerName string) (Handler, error)

// Create calls f.
func (f HandlerFactoryFunc) Create(ch *Channel, listenerName string) (Handler, error) {
	return f(ch, listenerName)
}

// Channel is one accepted connection and the stages attached to it.
type Channel struct {
	id       string
	listener string
	created  time.Time
	logger   *slog.Logger
	observer Observer

	raw          net.Conn
	conn         net.Conn // outermost transport: the TLS engine or the consolidator
	consolidator *consolidatingConn
	tlsConn      *tls.Conn
	handshake    time.Duration
	input        io.Reader
	encoder      *FrameEncoder
	decoder      *FrameDecoder
	flow         *FlowController
	handler      Handler
	gate         *Gate
	stages       []string

	mu          sync.Mutex
	proxyHeader *proxyproto.Header
	cancel      context.CancelFunc
	closed      bool

	closeOnce sync.Once
	done      chan struct{}
}

func newChannel(conn net.Conn, listener string, logger *slog.Logger, observer Observer) *Channel {
	ch := &Channel{
		id:       uuid.NewString(),
		listener: listener,
		created:  time.Now(),
		observer: observer,
		raw:      conn,
		conn:     conn,
		gate:     NewGate(),
		done:     make(chan struct{}),
	}
	ch.logger = logger.With(
		"conn_id", ch.id,
		"listener", listener,
		"remote_addr", conn.RemoteAddr().String(),
	)
	return ch
}

// ID returns the unique connection identifier.
func (ch *Channel) ID() string { return ch.id }

// ListenerName returns the name of the listener that accepted the connection.
func (ch *Channel) ListenerName() string { return ch.listener }

// Logger returns a logger tagged with the connection identifier.
func (ch *Channel) Logger() *slog.Logger { return ch.logger }

// StageNames returns the attached stage names in attachment order.
func (ch *Channel) StageNames() []string {
	return append([]string(nil), ch.stages...)
}

// Encoder returns the frame encoder, or nil before the encoder stage.
func (ch *Channel) Encoder() *FrameEncoder { return ch.encoder }

// TLSActive reports whether the channel terminates TLS.
func (ch *Channel) TLSActive() bool { return ch.tlsConn != nil }

// ConnectionState returns the TLS connection state. ok is false on
// plain-text channels.
func (ch *Channel) ConnectionState() (state tls.ConnectionState, ok bool) {
	if ch.tlsConn == nil {
		return tls.ConnectionState{}, false
	}
	return ch.tlsConn.ConnectionState(), true
}

// LocalAddr returns the local address of the connection.
func (ch *Channel) LocalAddr() net.Addr { return ch.raw.LocalAddr() }

// RemoteAddr returns the client address: the source from the PROXY header
// when one was received, the socket peer otherwise.
func (ch *Channel) RemoteAddr() net.Addr {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.proxyHeader != nil && ch.proxyHeader.SourceAddr != nil {
		return ch.proxyHeader.SourceAddr
	}
	return ch.raw.RemoteAddr()
}

// ProxyHeader returns the PROXY protocol header, or nil if none was received.
func (ch *Channel) ProxyHeader() *proxyproto.Header {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.proxyHeader
}

func (ch *Channel) setProxyHeader(h *proxyproto.Header) {
	ch.mu.Lock()
	ch.proxyHeader = h
	ch.mu.Unlock()

	if h.SourceAddr != nil {
		ch.logger.Debug("proxy protocol header received",
			"version", h.Version,
			"source_addr", h.SourceAddr.String(),
		)
	}
}

// EnableReads opens the read gate. It is idempotent.
func (ch *Channel) EnableReads() { ch.gate.Open() }

// ReadsEnabled reports whether the read gate is open.
func (ch *Channel) ReadsEnabled() bool { return ch.gate.IsOpen() }

// Gate returns the channel's read gate.
func (ch *Channel) Gate() *Gate { return ch.gate }

// WriteFrame queues a frame for sending. Bytes reach the socket on Flush,
// when the consolidation buffer fills, before the next read, or on close.
func (ch *Channel) WriteFrame(payload []byte) error {
	return ch.WritePair(nil, payload)
}

// WritePair queues a frame made of header followed by payload.
func (ch *Channel) WritePair(header, payload []byte) error {
	if ch.isClosed() {
		return ErrChannelClosed
	}
	return ch.encoder.WritePair(header, payload)
}

// Flush sends buffered outbound bytes.
func (ch *Channel) Flush() error {
	if ch.consolidator == nil {
		return nil
	}
	return ch.consolidator.Flush()
}

// WriteAndFlush writes a frame and flushes it.
func (ch *Channel) WriteAndFlush(payload []byte) error {
	if err := ch.WriteFrame(payload); err != nil {
		return err
	}
	return ch.Flush()
}

// Done is closed once the channel is closed.
func (ch *Channel) Done() <-chan struct{} { return ch.done }

func (ch *Channel) isClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

// Close tears the channel down. Buffered outbound bytes are flushed first.
// The shared TLS context is unaffected.
func (ch *Channel) Close() error {
	var err error
	ch.closeOnce.Do(func() {
		ch.mu.Lock()
		ch.closed = true
		cancel := ch.cancel
		ch.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		err = ch.conn.Close()
		close(ch.done)
	})
	return err
}

// Serve runs the channel until the connection ends, the handler fails or
// ctx is done: it completes the TLS handshake, activates the handler and
// then decodes and dispatches frames once reads are enabled. The channel is
// closed when Serve returns. Clean disconnects return nil.
func (ch *Channel) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return ErrChannelClosed
	}
	ch.cancel = cancel
	ch.mu.Unlock()

	ctx = logging.WithConnectionID(ctx, ch.id)
	ctx = logging.WithListener(ctx, ch.listener)

	if ch.observer != nil {
		ch.observer.ObserveChannelOpened(ch.listener)
	}
	defer func() {
		_ = ch.Close()
		if ch.observer != nil {
			ch.observer.ObserveChannelClosed(ch.listener, time.Since(ch.created))
		}
		ch.logger.Debug("channel closed")
	}()

	if ch.tlsConn != nil {
		if err := ch.handshakeTLS(ctx); err != nil {
			ch.logger.Debug("tls handshake failed", "error", err)
			return fmt.Errorf("tls handshake: %w", err)
		}
		if err := ch.Flush(); err != nil {
			return err
		}
	}

	if err := ch.handler.ChannelActive(ctx, ch); err != nil {
		ch.logger.Warn("handler rejected channel", "error", err)
		return err
	}
	defer ch.handler.ChannelInactive(ch)

	// Closing the transport unblocks a reader waiting on the socket.
	stop := context.AfterFunc(ctx, func() { _ = ch.conn.Close() })
	defer stop()

	var (
		wg          sync.WaitGroup
		readErr     error
		dispatchErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer ch.flow.Close()
		readErr = ch.readLoop(ctx)
		if readErr != nil {
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		dispatchErr = ch.flow.Run(ctx, func(frame []byte) error {
			if err := ch.handler.HandleFrame(ctx, ch, frame); err != nil {
				return err
			}
			return ch.Flush()
		})
		cancel()
	}()
	wg.Wait()

	if dispatchErr != nil {
		ch.logger.Warn("handler failed", "error", dispatchErr)
		return dispatchErr
	}
	return readErr
}

// readLoop waits for the gate, then decodes frames into the flow
// controller. A clean end of stream returns nil.
func (ch *Channel) readLoop(ctx context.Context) error {
	if err := ch.gate.Wait(ctx); err != nil {
		return nil
	}

	for {
		frame, err := ch.decoder.Next()
		if err != nil {
			return ch.readError(ctx, err)
		}
		if ch.observer != nil {
			ch.observer.ObserveFrame(ch.listener, len(frame)+LengthFieldSize)
		}
		if err := ch.flow.Push(ctx, frame); err != nil {
			return nil
		}
	}
}

func (ch *Channel) readError(ctx context.Context, err error) error {
	var tooLarge *FrameTooLargeError
	switch {
	case errors.As(err, &tooLarge):
		if ch.observer != nil {
			ch.observer.ObserveFrameRejected(ch.listener)
		}
		ch.logger.Warn("closing connection: frame too large",
			"frame_length", tooLarge.Length,
			"max_frame_length", tooLarge.Max,
		)
		return err
	case errors.Is(err, io.EOF), ctx.Err() != nil, errors.Is(err, net.ErrClosed):
		return nil
	default:
		ch.logger.Debug("connection read failed", "error", err)
		return err
	}
}

// handshakeTLS completes the server handshake, giving up once the handshake
// timeout passes.
func (ch *Channel) handshakeTLS(ctx context.Context) error {
	if ch.handshake > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ch.handshake)
		defer cancel()
	}
	return ch.tlsConn.HandshakeContext(ctx)
}
