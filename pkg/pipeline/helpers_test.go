package pipeline

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"mercator-hq/conduit/pkg/config"
)

// testHandler records frames and optionally echoes them back.
type testHandler struct {
	enableOnActive bool
	echo           bool
	fail           error

	frames chan []byte

	mu       sync.Mutex
	active   int
	inactive int
}

func newTestHandler(enable, echo bool) *testHandler {
	return &testHandler{
		enableOnActive: enable,
		echo:           echo,
		frames:         make(chan []byte, 16),
	}
}

func (h *testHandler) ChannelActive(_ context.Context, ch *Channel) error {
	h.mu.Lock()
	h.active++
	h.mu.Unlock()
	if h.enableOnActive {
		ch.EnableReads()
	}
	return nil
}

func (h *testHandler) HandleFrame(_ context.Context, ch *Channel, frame []byte) error {
	h.frames <- frame
	if h.fail != nil {
		return h.fail
	}
	if h.echo {
		return ch.WriteFrame(frame)
	}
	return nil
}

func (h *testHandler) ChannelInactive(*Channel) {
	h.mu.Lock()
	h.inactive++
	h.mu.Unlock()
}

func (h *testHandler) counts() (active, inactive int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active, h.inactive
}

func factoryFor(h Handler) HandlerFactory {
	return HandlerFactoryFunc(func(*Channel, string) (Handler, error) { return h, nil })
}

func brokerConfig(maxMessageSize uint32, proxy bool) func() config.BrokerConfig {
	return func() config.BrokerConfig {
		return config.BrokerConfig{
			MaxMessageSize:         maxMessageSize,
			HAProxyProtocolEnabled: proxy,
			FlowControlQueueSize:   4,
		}
	}
}

// staticEngines creates engines from a fixed tls.Config.
type staticEngines struct{ cfg *tls.Config }

func (s staticEngines) Initialized() bool { return s.cfg != nil }

func (s staticEngines) CreateServerEngine(conn net.Conn) (*tls.Conn, error) {
	return tls.Server(conn, s.cfg), nil
}

type served struct {
	ch  *Channel
	err chan error
}

// startChannel accepts one loopback connection, assembles it with asm and
// serves it in the background.
func startChannel(t *testing.T, asm *Assembler) (net.Conn, served) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	result := make(chan served, 1)
	acceptErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		ch, err := asm.Assemble(ctx, conn)
		if err != nil {
			acceptErr <- err
			return
		}
		s := served{ch: ch, err: make(chan error, 1)}
		result <- s
		go func() { s.err <- ch.Serve(ctx) }()
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case s := <-result:
		return client, s
	case err := <-acceptErr:
		t.Fatalf("assemble: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the channel")
	}
	return nil, served{}
}

func writeFrame(t *testing.T, w io.Writer, payload []byte) {
	t.Helper()
	buf := make([]byte, LengthFieldSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[LengthFieldSize:], payload)
	if _, err := w.Write(buf); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, conn net.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	var hdr [LengthFieldSize]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		t.Fatalf("read frame header: %v", err)
	}
	payload := make([]byte, binary.BigEndian.Uint32(hdr[:]))
	if _, err := io.ReadFull(conn, payload); err != nil {
		t.Fatalf("read frame payload: %v", err)
	}
	return payload
}

func waitFrame(t *testing.T, h *testHandler) []byte {
	t.Helper()
	select {
	case f := <-h.frames:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("no frame delivered")
		return nil
	}
}

func waitServe(t *testing.T, s served) error {
	t.Helper()
	select {
	case err := <-s.err:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}
