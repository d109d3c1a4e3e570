// Package echo provides a connection handler that writes every frame back to
// its sender. Reads are enabled only once the broker reports ready.
package echo

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"mercator-hq/conduit/pkg/pipeline"
	ctls "mercator-hq/conduit/pkg/security/tls"
)

// DefaultReadyInterval is how often readiness is polled for a connection
// that is waiting to be enabled.
const DefaultReadyInterval = 50 * time.Millisecond

// Readiness reports when the broker may start reading from connections.
// *health.Checker implements it.
type Readiness interface {
	WaitReady(ctx context.Context, interval time.Duration) error
}

// Factory creates echo handlers.
type Factory struct {
	ready    Readiness
	interval time.Duration
	logger   *slog.Logger
	identity string

	handled atomic.Int64
}

// Option configures a Factory.
type Option func(*Factory)

// WithReadyInterval overrides DefaultReadyInterval.
func WithReadyInterval(d time.Duration) Option {
	return func(f *Factory) { f.interval = d }
}

// WithIdentitySource selects the client certificate field logged as the
// peer identity, e.g. ctls.IdentityOrgUnit.
func WithIdentitySource(source string) Option {
	return func(f *Factory) { f.identity = source }
}

// NewFactory creates a factory. A nil ready enables reads as soon as the
// channel is active.
func NewFactory(ready Readiness, logger *slog.Logger, opts ...Option) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{
		ready:    ready,
		interval: DefaultReadyInterval,
		logger:   logger.With("component", "echo"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create implements pipeline.HandlerFactory.
func (f *Factory) Create(ch *pipeline.Channel, listenerName string) (pipeline.Handler, error) {
	return &handler{factory: f}, nil
}

// Handled returns the number of frames echoed by all handlers.
func (f *Factory) Handled() int64 { return f.handled.Load() }

type handler struct {
	factory *Factory
}

func (h *handler) ChannelActive(ctx context.Context, ch *pipeline.Channel) error {
	f := h.factory
	attrs := []any{"remote_addr", ch.RemoteAddr().String()}
	if state, ok := ch.ConnectionState(); ok {
		if peer := ctls.PeerIdentity(state, f.identity); peer != "" {
			attrs = append(attrs, "peer", peer)
		}
	}
	ch.Logger().Debug("echo channel active", attrs...)

	if f.ready == nil {
		ch.EnableReads()
		return nil
	}

	go func() {
		if err := f.ready.WaitReady(ctx, f.interval); err != nil {
			return
		}
		ch.EnableReads()
	}()
	return nil
}

func (h *handler) HandleFrame(_ context.Context, ch *pipeline.Channel, frame []byte) error {
	h.factory.handled.Add(1)
	return ch.WriteFrame(frame)
}

func (h *handler) ChannelInactive(ch *pipeline.Channel) {
	ch.Logger().Debug("echo channel inactive")
}
