package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/pipeline"
	"mercator-hq/conduit/pkg/scheduler"
	"mercator-hq/conduit/pkg/security/secrets"
	ctls "mercator-hq/conduit/pkg/security/tls"
	"mercator-hq/conduit/pkg/telemetry/health"
	"mercator-hq/conduit/pkg/telemetry/metrics"
)

// ExpiryCheckJobName is the name the certificate expiry check is
// registered under.
const ExpiryCheckJobName = "tls-expiry-check"

// ErrAlreadyRunning is returned by Start when the server is running.
var ErrAlreadyRunning = errors.New("server is already running")

// Server accepts connections on every configured listener and hands each
// one to the pipeline assembler of its listener.
type Server struct {
	cfg      *config.Config
	handlers pipeline.HandlerFactory
	logger   *slog.Logger

	source    ctls.CredentialSource
	secrets   *secrets.Manager
	manager   *ctls.Manager
	collector *metrics.Collector
	checker   *health.Checker
	sched     *scheduler.Scheduler
	limiter   *connLimiter
	watcher   *ctls.CredentialWatcher
	version   health.VersionInfo

	listeners []*Listener
	admin     *http.Server
	adminLn   net.Listener

	cancel   context.CancelFunc
	conns    sync.WaitGroup
	mu       sync.Mutex
	channels map[string]*pipeline.Channel
	running  bool

	shutdownOnce sync.Once
	shutdownErr  error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithCollector sets the metrics collector. By default one is created from
// the telemetry configuration.
func WithCollector(c *metrics.Collector) Option {
	return func(s *Server) { s.collector = c }
}

// WithChecker sets the health checker readiness checks are registered
// with. By default one is created from the telemetry configuration.
func WithChecker(c *health.Checker) Option {
	return func(s *Server) { s.checker = c }
}

// WithCredentialSource overrides where TLS snapshots are read from. The
// default reads the security section of the current configuration.
func WithCredentialSource(src ctls.CredentialSource) Option {
	return func(s *Server) { s.source = src }
}

// WithVersion sets the build information served at /version.
func WithVersion(info health.VersionInfo) Option {
	return func(s *Server) { s.version = info }
}

// New creates a server for cfg. handlers creates the application handler of
// every accepted connection.
func New(cfg *config.Config, handlers pipeline.HandlerFactory, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if handlers == nil {
		return nil, errors.New("handler factory is required")
	}

	s := &Server{
		cfg:      cfg,
		handlers: handlers,
		logger:   slog.Default(),
		channels: make(map[string]*pipeline.Channel),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "server")

	if s.collector == nil {
		s.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}
	if s.checker == nil {
		s.checker = health.New(cfg.Telemetry.Health.CheckTimeout)
	}
	resolver, err := newSecretResolver(cfg.Security)
	if err != nil {
		return nil, err
	}
	s.secrets = resolver
	if s.source == nil {
		s.source = ctls.ConfigSource{Get: s.currentConfig, Secrets: resolver}
	}

	s.limiter = newConnLimiter(cfg.Broker.MaxConnections, cfg.Broker.MaxConnectionsPerIP)
	s.manager = ctls.NewManager(s.source, ctls.ManagerOptions{
		Logger:   s.logger,
		Observer: s.collector,
	})
	s.sched = scheduler.New(
		scheduler.WithLogger(s.logger),
		scheduler.WithObserver(s.collector),
	)
	return s, nil
}

// newSecretResolver resolves store password references from the secrets
// directory, if configured, and then from the environment.
func newSecretResolver(cfg config.SecurityConfig) (*secrets.Manager, error) {
	var providers []secrets.SecretProvider
	if cfg.SecretsDir != "" {
		files, err := secrets.NewFileProvider(cfg.SecretsDir)
		if err != nil {
			return nil, err
		}
		providers = append(providers, files)
	}
	providers = append(providers, secrets.NewEnvProvider(secrets.DefaultEnvPrefix))
	return secrets.NewManager(providers...), nil
}

// currentConfig prefers the process configuration so that a reload is seen
// by the next refresh and the next accepted connection.
func (s *Server) currentConfig() *config.Config {
	if cfg := config.GetConfig(); cfg != nil {
		return cfg
	}
	return s.cfg
}

func (s *Server) brokerConfig() config.BrokerConfig {
	return s.currentConfig().Broker
}

// Start initializes TLS when a listener needs it, binds every listener and
// the admin endpoint and starts accepting connections. It returns once the
// server is accepting. Start refuses to start when the TLS context cannot be
// built.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.start(ctx); err != nil {
		s.cancel()
		s.closeListeners()
		s.listeners = nil
		s.sched.Stop()
		if s.watcher != nil {
			_ = s.watcher.Close()
		}
		if s.adminLn != nil {
			_ = s.adminLn.Close()
		}
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}

	for _, l := range s.listeners {
		go s.acceptLoop(ctx, l)
	}
	s.checker.MarkStarted()

	s.logger.Info("server started", "listeners", len(s.listeners))
	return nil
}

func (s *Server) start(ctx context.Context) error {
	if s.cfg.TLSEnabled() {
		if err := s.startTLS(ctx); err != nil {
			return err
		}
	}

	for _, lc := range s.cfg.Listeners {
		l, err := s.listen(lc)
		if err != nil {
			return err
		}
		s.listeners = append(s.listeners, l)
	}
	s.checker.RegisterCheck("listeners", s.checkListeners)

	return s.startAdmin()
}

func (s *Server) startTLS(ctx context.Context) error {
	if err := s.manager.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize tls context: %w", err)
	}
	s.checker.RegisterCheck("tls", s.manager.Check)

	broker := s.cfg.Broker
	if err := s.manager.ScheduleRefresh(s.sched, broker.RefreshInterval()); err != nil {
		return err
	}

	if broker.TLSExpiryCheckSchedule != "" {
		_ = s.manager.ReportExpiry(ctx)
		if err := s.sched.ScheduleCron(ExpiryCheckJobName, broker.TLSExpiryCheckSchedule, s.manager.ReportExpiry); err != nil {
			return fmt.Errorf("failed to schedule certificate expiry check: %w", err)
		}
	}

	if broker.TLSCertWatch {
		w, err := ctls.WatchManager(s.manager, ctls.DefaultWatchDebounce, s.logger)
		if err != nil {
			return fmt.Errorf("failed to watch tls credentials: %w", err)
		}
		s.watcher = w
		go func() {
			if err := w.Run(ctx); err != nil {
				s.logger.Error("credential watcher stopped", "error", err)
			}
		}()
	}
	return nil
}

func (s *Server) listen(lc config.ListenerConfig) (*Listener, error) {
	name := lc.Name
	if name == "" {
		name = lc.Address
	}
	opts := pipeline.Options{EnableTLS: lc.TLS, ListenerName: name}

	asm, err := pipeline.NewAssembler(opts, s.handlers,
		pipeline.WithTLS(s.manager),
		pipeline.WithBrokerConfig(s.brokerConfig),
		pipeline.WithLogger(s.logger),
		pipeline.WithObserver(s.collector),
	)
	if err != nil {
		return nil, fmt.Errorf("listener %q: %w", name, err)
	}

	ln, err := net.Listen("tcp", lc.Address)
	if err != nil {
		return nil, fmt.Errorf("listener %q: failed to listen on %s: %w", name, lc.Address, err)
	}

	s.logger.Info("listening",
		"listener", name,
		"address", ln.Addr().String(),
		"tls_enabled", lc.TLS,
	)
	return &Listener{name: name, opts: opts, assembler: asm, ln: ln}, nil
}

// acceptLoop accepts connections until the listener is closed. Other accept
// errors are retried with an increasing delay.
func (s *Server) acceptLoop(ctx context.Context, l *Listener) {
	b := &backoff.Backoff{Min: 5 * time.Millisecond, Max: time.Second, Factor: 2}

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			s.collector.RecordAcceptError(l.name)
			delay := b.Duration()
			s.logger.Warn("accept failed, retrying",
				"listener", l.name,
				"error", err,
				"retry_in", delay.String(),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		b.Reset()

		release, reason := s.limiter.acquire(conn.RemoteAddr())
		if reason != "" {
			s.collector.RecordConnectionRejected(l.name, reason)
			s.logger.Warn("connection rejected",
				"listener", l.name,
				"remote_addr", conn.RemoteAddr().String(),
				"reason", reason,
			)
			_ = conn.Close()
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			defer release()
			s.serve(ctx, l, conn)
		}()
	}
}

func (s *Server) serve(ctx context.Context, l *Listener, conn net.Conn) {
	ch, err := l.assembler.Assemble(ctx, conn)
	if err != nil {
		return
	}

	s.track(ch)
	defer s.untrack(ch)

	if err := ch.Serve(ctx); err != nil {
		ch.Logger().Debug("connection closed", "error", err)
	}
}

func (s *Server) track(ch *pipeline.Channel) {
	s.mu.Lock()
	s.channels[ch.ID()] = ch
	s.mu.Unlock()
}

func (s *Server) untrack(ch *pipeline.Channel) {
	s.mu.Lock()
	delete(s.channels, ch.ID())
	s.mu.Unlock()
}

// ActiveChannels returns the number of connections being served.
func (s *Server) ActiveChannels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

// Listeners returns the bound listeners in configuration order.
func (s *Server) Listeners() []*Listener {
	return s.listeners
}

// Listener returns the listener with the given name.
func (s *Server) Listener(name string) (*Listener, bool) {
	for _, l := range s.listeners {
		if l.name == name {
			return l, true
		}
	}
	return nil, false
}

// AdminAddr returns the address of the admin endpoint, or nil when it is
// disabled or the server has not started.
func (s *Server) AdminAddr() net.Addr {
	if s.adminLn == nil {
		return nil
	}
	return s.adminLn.Addr()
}

// TLSManager returns the manager owning the server TLS context.
func (s *Server) TLSManager() *ctls.Manager { return s.manager }

// Scheduler returns the scheduler running the background jobs.
func (s *Server) Scheduler() *scheduler.Scheduler { return s.sched }

// Checker returns the health checker.
func (s *Server) Checker() *health.Checker { return s.checker }

// Collector returns the metrics collector.
func (s *Server) Collector() *metrics.Collector { return s.collector }

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Server) checkListeners(context.Context) error {
	if !s.IsRunning() {
		return errors.New("server is not running")
	}
	return nil
}

// Run starts the server and blocks until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.logger.Info("context cancelled, initiating shutdown")
	return s.Shutdown(context.Background())
}

// Shutdown stops accepting, closes every connection, stops the background
// jobs and the admin endpoint. It waits at most the configured shutdown
// timeout for connections to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		timeout := s.cfg.Broker.ShutdownTimeout
		s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		s.closeListeners()
		if s.watcher != nil {
			_ = s.watcher.Close()
		}
		s.sched.Stop()

		s.mu.Lock()
		for _, ch := range s.channels {
			_ = ch.Close()
		}
		s.mu.Unlock()
		s.cancel()

		done := make(chan struct{})
		go func() {
			s.conns.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			s.shutdownErr = fmt.Errorf("connections still open after %s: %w", timeout, shutdownCtx.Err())
		}

		if s.admin != nil {
			if err := s.admin.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during admin server shutdown", "error", err)
				s.shutdownErr = errors.Join(s.shutdownErr, fmt.Errorf("admin server shutdown error: %w", err))
			}
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		s.logger.Info("server stopped")
	})

	return s.shutdownErr
}

func (s *Server) closeListeners() {
	for _, l := range s.listeners {
		if err := l.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("failed to close listener", "listener", l.name, "error", err)
		}
	}
}
