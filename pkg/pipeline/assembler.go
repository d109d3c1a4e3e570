package pipeline

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/jpillora/sizestr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mercator-hq/conduit/pkg/config"
)

// Stage names, in attachment order.
const (
	ConsolidationStageName  = "consolidation"
	TLSStageName            = "tls"
	EncoderStageName        = "encoder"
	ProxyProtocolStageName  = "proxyProtocol"
	FrameDecoderStageName   = "frameDecoder"
	FlowControllerStageName = "flowController"
	HandlerStageName        = "handler"
)

// FramePadding is added to the configured maximum message size to obtain
// the maximum frame length, leaving room for command and metadata bytes.
const FramePadding = 10 * 1024

// Options are the bootstrap options of one listening endpoint. They are
// fixed when the listener starts.
type Options struct {
	EnableTLS    bool
	ListenerName string
}

// EngineSource creates server-side TLS engines. *tls.Manager from the
// security/tls package implements it.
type EngineSource interface {
	Initialized() bool
	CreateServerEngine(conn net.Conn) (*tls.Conn, error)
}

// Observer is told about channel lifecycle events.
type Observer interface {
	ObserveAssembly(listener string, elapsed time.Duration, err error)
	ObserveChannelOpened(listener string)
	ObserveChannelClosed(listener string, lifetime time.Duration)
	ObserveFrame(listener string, size int)
	ObserveFrameRejected(listener string)
}

// Assembler builds the stage pipeline of every connection accepted on one
// listener.
type Assembler struct {
	opts     Options
	handlers HandlerFactory
	engines  EngineSource
	broker   func() config.BrokerConfig
	padding  int64
	logger   *slog.Logger
	observer Observer
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithTLS sets the source of TLS engines. It is required when
// Options.EnableTLS is set.
func WithTLS(engines EngineSource) AssemblerOption {
	return func(a *Assembler) { a.engines = engines }
}

// WithBrokerConfig sets the function consulted for broker settings on
// every assembly. The default reads the global configuration.
func WithBrokerConfig(fn func() config.BrokerConfig) AssemblerOption {
	return func(a *Assembler) { a.broker = fn }
}

// WithFramePadding overrides FramePadding.
func WithFramePadding(padding int64) AssemblerOption {
	return func(a *Assembler) { a.padding = padding }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) AssemblerOption {
	return func(a *Assembler) { a.logger = logger }
}

// WithObserver reports channel events to o.
func WithObserver(o Observer) AssemblerOption {
	return func(a *Assembler) { a.observer = o }
}

// NewAssembler creates an assembler for one listener. It fails when TLS is
// enabled without an initialized engine source.
func NewAssembler(opts Options, handlers HandlerFactory, options ...AssemblerOption) (*Assembler, error) {
	a := &Assembler{
		opts:     opts,
		handlers: handlers,
		broker:   globalBrokerConfig,
		padding:  FramePadding,
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(a)
	}

	if handlers == nil {
		return nil, &PipelineAssemblyError{Stage: HandlerStageName, Err: errors.New("no handler factory")}
	}
	if opts.EnableTLS && (a.engines == nil || !a.engines.Initialized()) {
		return nil, &PipelineAssemblyError{Stage: TLSStageName, Err: ErrTLSUnavailable}
	}

	a.logger = a.logger.With("component", "pipeline", "listener", opts.ListenerName)
	return a, nil
}

func globalBrokerConfig() config.BrokerConfig {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg.Broker
	}
	return config.DefaultConfig().Broker
}

// Options returns the bootstrap options.
func (a *Assembler) Options() Options { return a.opts }

// Plan returns the stages that would be attached to a connection accepted
// now.
func (a *Assembler) Plan() Plan {
	return a.plan(a.broker())
}

func (a *Assembler) plan(broker config.BrokerConfig) Plan {
	p := make(Plan, 0, 7)
	p = append(p, stage{ConsolidationStageName, attachConsolidation})
	if a.opts.EnableTLS {
		timeout := broker.TLSHandshakeTimeout
		p = append(p, stage{TLSStageName, func(ch *Channel) error {
			return a.attachTLS(ch, timeout)
		}})
	}
	p = append(p, stage{EncoderStageName, attachEncoder})
	if broker.HAProxyProtocolEnabled {
		p = append(p, stage{ProxyProtocolStageName, attachProxyDetector})
	}

	maxFrame := int64(broker.MaxMessageSize) + a.padding
	queueSize := broker.FlowControlQueueSize
	p = append(p,
		stage{FrameDecoderStageName, func(ch *Channel) error {
			ch.decoder = NewFrameDecoder(ch.input, maxFrame)
			return nil
		}},
		stage{FlowControllerStageName, func(ch *Channel) error {
			ch.flow = NewFlowController(ch.gate, queueSize)
			return nil
		}},
		stage{HandlerStageName, a.attachHandler},
	)
	return p
}

// Assemble wraps conn in a new Channel with every planned stage attached.
// The channel's gate is closed before any stage is attached. On failure conn
// is closed and a *PipelineAssemblyError is returned.
func (a *Assembler) Assemble(ctx context.Context, conn net.Conn) (*Channel, error) {
	_, span := otel.Tracer(tracerName).Start(ctx, "pipeline.assemble")
	defer span.End()

	start := time.Now()
	ch := newChannel(conn, a.opts.ListenerName, a.logger, a.observer)

	broker := a.broker()
	err := a.plan(broker).Realize(ch)

	span.SetAttributes(
		attribute.String("pipeline.listener", a.opts.ListenerName),
		attribute.Bool("pipeline.tls", a.opts.EnableTLS),
		attribute.StringSlice("pipeline.stages", ch.stages),
	)
	if a.observer != nil {
		a.observer.ObserveAssembly(a.opts.ListenerName, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ch.logger.Warn("failed to assemble pipeline", "error", err)
		_ = conn.Close()
		return nil, err
	}

	ch.logger.Debug("pipeline assembled",
		"stages", ch.stages,
		"max_frame", sizestr.ToString(ch.decoder.MaxFrameLength()),
	)
	return ch, nil
}

func attachConsolidation(ch *Channel) error {
	ch.consolidator = newConsolidatingConn(ch.conn, ConsolidationBufferSize)
	ch.conn = ch.consolidator
	ch.input = ch.conn
	return nil
}

func (a *Assembler) attachTLS(ch *Channel, handshakeTimeout time.Duration) error {
	engine, err := a.engines.CreateServerEngine(ch.conn)
	if err != nil {
		return err
	}
	ch.tlsConn = engine
	ch.handshake = handshakeTimeout
	ch.conn = engine
	ch.input = engine
	return nil
}

func attachEncoder(ch *Channel) error {
	ch.encoder = NewFrameEncoder(ch.conn, ch.tlsConn != nil)
	return nil
}

func attachProxyDetector(ch *Channel) error {
	ch.input = NewProxyDetector(ch.input, ch.setProxyHeader)
	return nil
}

func (a *Assembler) attachHandler(ch *Channel) error {
	h, err := a.handlers.Create(ch, a.opts.ListenerName)
	if err != nil {
		return err
	}
	if h == nil {
		return errors.New("handler factory returned nil handler")
	}
	ch.handler = h
	return nil
}

const tracerName = "mercator-hq/conduit/pkg/pipeline"
