package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RefreshJobName is the name the periodic refresh is registered under.
const RefreshJobName = "tls-context-refresh"

// Scheduler runs a task repeatedly, waiting delay between the end of one run
// and the start of the next.
type Scheduler interface {
	ScheduleWithFixedDelay(name string, initialDelay, delay time.Duration, task func(context.Context) error) error
}

// RefreshObserver receives the outcome of every refresh attempt.
type RefreshObserver interface {
	ObserveRefresh(rebuilt bool, generation uint64, elapsed time.Duration, err error)
}

// ExpiryObserver is implemented by observers that also track how long the
// served certificate remains valid.
type ExpiryObserver interface {
	ObserveCertificateExpiry(notAfter time.Time)
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Observer, if set, is told about every refresh.
	Observer RefreshObserver
}

// Manager owns the server TLS context for its lifetime: it builds the first
// context from a CredentialSource, hands out engines bound to the current
// context and refreshes the context in the background.
type Manager struct {
	source   CredentialSource
	logger   *slog.Logger
	observer RefreshObserver

	factory atomic.Pointer[factoryBox]

	// refreshMu keeps refreshes from interleaving so an older snapshot can
	// never be published after a newer one.
	refreshMu sync.Mutex
}

type factoryBox struct{ Factory }

// NewManager creates a Manager reading snapshots from source.
func NewManager(source CredentialSource, opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		source:   source,
		logger:   logger.With("component", "tls.manager"),
		observer: opts.Observer,
	}
}

// Initialize loads the first snapshot, selects the factory it names and
// builds the initial context. Any failure is a *CredentialLoadError.
func (m *Manager) Initialize(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	snapshot, err := m.source.Load(ctx)
	if err != nil {
		return loadError("load credentials", "", err)
	}

	factory, err := NewFactory(snapshot.FactoryPlugin, snapshot.FactoryPluginParams, m.logger)
	if err != nil {
		return loadError("create factory", "", err)
	}
	if err := factory.Initialize(snapshot); err != nil {
		return loadError("initialize factory", "", err)
	}
	m.factory.Store(&factoryBox{factory})

	m.logger.Info("tls context initialized", "tls", snapshot)
	return nil
}

// Initialized reports whether Initialize has succeeded.
func (m *Manager) Initialized() bool {
	return m.factory.Load() != nil
}

// CreateServerEngine returns a new server-side TLS connection over conn
// bound to the current context. It is safe to call concurrently with
// Refresh.
func (m *Manager) CreateServerEngine(conn net.Conn) (*tls.Conn, error) {
	box := m.factory.Load()
	if box == nil {
		return nil, ErrTLSNotInitialized
	}
	return box.CreateServerEngine(conn)
}

// Current returns the published context when the factory exposes one.
func (m *Manager) Current() *ServerContext {
	box := m.factory.Load()
	if box == nil {
		return nil
	}
	if cur, ok := box.Factory.(interface{ Current() *ServerContext }); ok {
		return cur.Current()
	}
	return nil
}

// Refresh reloads the snapshot and lets the factory rebuild the context if
// anything changed. On failure the current context stays in service.
func (m *Manager) Refresh(ctx context.Context) error {
	box := m.factory.Load()
	if box == nil {
		return ErrTLSNotInitialized
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "tls.refresh")
	defer span.End()

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	start := time.Now()
	rebuilt, err := m.refresh(ctx, box)
	elapsed := time.Since(start)

	var generation uint64
	if cur := m.Current(); cur != nil {
		generation = cur.Generation()
	}
	if m.observer != nil {
		m.observer.ObserveRefresh(rebuilt, generation, elapsed, err)
	}

	span.SetAttributes(
		attribute.Bool("tls.rebuilt", rebuilt),
		attribute.Int64("tls.generation", int64(generation)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Error("failed to refresh tls context", "error", err)
		return err
	}

	m.logger.Debug("tls context refresh checked",
		"rebuilt", rebuilt,
		"generation", generation,
		"duration_ms", elapsed.Milliseconds(),
	)
	return nil
}

func (m *Manager) refresh(ctx context.Context, box *factoryBox) (bool, error) {
	snapshot, err := m.source.Load(ctx)
	if err != nil {
		return false, loadError("load credentials", "", err)
	}
	rebuilt, err := box.Update(snapshot)
	if err != nil {
		return false, loadError("update context", "", err)
	}
	return rebuilt, nil
}

// ScheduleRefresh registers a fixed-delay refresh job with sched. A zero or
// negative interval disables refresh.
func (m *Manager) ScheduleRefresh(sched Scheduler, interval time.Duration) error {
	if interval <= 0 {
		m.logger.Info("tls context refresh disabled")
		return nil
	}
	if !m.Initialized() {
		return ErrTLSNotInitialized
	}
	if err := sched.ScheduleWithFixedDelay(RefreshJobName, interval, interval, m.Refresh); err != nil {
		return fmt.Errorf("failed to schedule tls refresh: %w", err)
	}
	m.logger.Info("tls context refresh scheduled", "interval", interval.String())
	return nil
}

// Check reports an error when no context is being served or the served
// certificate has expired. It is registered as a readiness check.
func (m *Manager) Check(context.Context) error {
	if !m.Initialized() {
		return ErrTLSNotInitialized
	}
	cur := m.Current()
	if cur == nil || cur.Leaf() == nil {
		return nil
	}
	return ValidateX509Certificate(cur.Leaf())
}

// ReportExpiry reports the validity of the served certificate: it is logged,
// handed to the observer when it implements ExpiryObserver, and returned as
// an error once the certificate is no longer valid.
func (m *Manager) ReportExpiry(context.Context) error {
	if !m.Initialized() {
		return ErrTLSNotInitialized
	}
	cur := m.Current()
	if cur == nil || cur.Leaf() == nil {
		return nil
	}
	leaf := cur.Leaf()

	if eo, ok := m.observer.(ExpiryObserver); ok {
		eo.ObserveCertificateExpiry(leaf.NotAfter)
	}

	if err := ValidateX509Certificate(leaf); err != nil {
		m.logger.Error("served certificate is not valid",
			"subject", leaf.Subject.CommonName,
			"error", err,
		)
		return err
	}

	days, warning := CheckCertificateExpiration(leaf)
	if warning != "" {
		m.logger.Warn("certificate expiring soon",
			"subject", leaf.Subject.CommonName,
			"expires_in_days", days,
			"expires_at", leaf.NotAfter.Format(time.RFC3339),
		)
		return nil
	}
	m.logger.Debug("certificate validity checked",
		"subject", leaf.Subject.CommonName,
		"expires_in_days", days,
	)
	return nil
}

const tracerName = "mercator-hq/conduit/pkg/security/tls"
