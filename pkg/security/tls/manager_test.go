package tls

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"mercator-hq/conduit/internal/testpki"
)

type recordingObserver struct {
	mu      sync.Mutex
	results  []refreshResult
	notAfter time.Time
}

type refreshResult struct {
	rebuilt    bool
	generation uint64
	err        error
}

func (o *recordingObserver) ObserveCertificateExpiry(notAfter time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notAfter = notAfter
}

func (o *recordingObserver) ObserveRefresh(rebuilt bool, generation uint64, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, refreshResult{rebuilt, generation, err})
}

type recordingScheduler struct {
	name         string
	initialDelay time.Duration
	delay        time.Duration
	task         func(context.Context) error
}

func (s *recordingScheduler) ScheduleWithFixedDelay(name string, initialDelay, delay time.Duration, task func(context.Context) error) error {
	s.name, s.initialDelay, s.delay, s.task = name, initialDelay, delay, task
	return nil
}

func TestManager_Initialize(t *testing.T) {
	ca := testpki.NewCA(t, "test-ca")
	snap, _ := pemSnapshot(t, ca, "broker")

	m := NewManager(StaticSource(snap), ManagerOptions{})
	if m.Initialized() {
		t.Fatal("expected manager to start uninitialized")
	}
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if !m.Initialized() {
		t.Fatal("expected manager to be initialized")
	}
	if m.Current().Generation() != 1 {
		t.Errorf("expected generation 1, got %d", m.Current().Generation())
	}
	if _, err := handshake(t, m, clientConfig(ca)); err != nil {
		t.Errorf("handshake failed: %v", err)
	}
	if err := m.Check(context.Background()); err != nil {
		t.Errorf("Check() error = %v", err)
	}
}

func TestManager_InitializeErrors(t *testing.T) {
	sourceErr := errors.New("vault unavailable")

	tests := []struct {
		name   string
		source CredentialSource
	}{
		{
			name: "source fails",
			source: CredentialSourceFunc(func(context.Context) (SSLConfiguration, error) {
				return SSLConfiguration{}, sourceErr
			}),
		},
		{
			name:   "unknown factory",
			source: StaticSource(SSLConfiguration{FactoryPlugin: "missing"}),
		},
		{
			name:   "missing files",
			source: StaticSource(SSLConfiguration{CertificateFilePath: "/nope.crt", KeyFilePath: "/nope.key"}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.source, ManagerOptions{})
			err := m.Initialize(context.Background())

			var cle *CredentialLoadError
			if !errors.As(err, &cle) {
				t.Fatalf("expected *CredentialLoadError, got %v", err)
			}
			if m.Initialized() {
				t.Error("manager must stay uninitialized after failure")
			}
		})
	}
}

func TestManager_NotInitialized(t *testing.T) {
	m := NewManager(StaticSource(SSLConfiguration{}), ManagerOptions{})

	if _, err := m.CreateServerEngine(nil); !errors.Is(err, ErrTLSNotInitialized) {
		t.Errorf("CreateServerEngine() error = %v, want ErrTLSNotInitialized", err)
	}
	if err := m.Refresh(context.Background()); !errors.Is(err, ErrTLSNotInitialized) {
		t.Errorf("Refresh() error = %v, want ErrTLSNotInitialized", err)
	}
	if err := m.Check(context.Background()); !errors.Is(err, ErrTLSNotInitialized) {
		t.Errorf("Check() error = %v, want ErrTLSNotInitialized", err)
	}
	if err := m.ScheduleRefresh(&recordingScheduler{}, time.Second); !errors.Is(err, ErrTLSNotInitialized) {
		t.Errorf("ScheduleRefresh() error = %v, want ErrTLSNotInitialized", err)
	}
}

func TestManager_RefreshFailureThenRecovery(t *testing.T) {
	ca := testpki.NewCA(t, "test-ca")
	snap, files := pemSnapshot(t, ca, "broker-old")

	var (
		mu   sync.Mutex
		fail bool
	)
	source := CredentialSourceFunc(func(context.Context) (SSLConfiguration, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return SSLConfiguration{}, errors.New("transient")
		}
		return snap, nil
	})

	obs := &recordingObserver{}
	m := NewManager(source, ManagerOptions{Logger: slog.Default(), Observer: obs})
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	// Unchanged material: refresh succeeds without a rebuild.
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	// Source failure: the context keeps serving.
	mu.Lock()
	fail = true
	mu.Unlock()
	if err := m.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh to fail")
	}
	peer, err := handshake(t, m, clientConfig(ca))
	if err != nil {
		t.Fatalf("handshake after failed refresh: %v", err)
	}
	if peer.Subject.CommonName != "broker-old" {
		t.Errorf("expected old certificate, got %q", peer.Subject.CommonName)
	}

	// Recovery with rotated material.
	rotated := ca.Issue(t, "broker-new", testpki.Options{})
	testpki.WriteFile(t, files.Cert, rotated.CertPEM)
	testpki.WriteFile(t, files.Key, rotated.KeyPEM)
	mu.Lock()
	fail = false
	mu.Unlock()

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() after recovery error = %v", err)
	}
	peer, err = handshake(t, m, clientConfig(ca))
	if err != nil {
		t.Fatalf("handshake after rotation: %v", err)
	}
	if peer.Subject.CommonName != "broker-new" {
		t.Errorf("expected rotated certificate, got %q", peer.Subject.CommonName)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.results) != 3 {
		t.Fatalf("expected 3 observed refreshes, got %d", len(obs.results))
	}
	if obs.results[0].rebuilt || obs.results[0].err != nil {
		t.Errorf("first refresh: %+v", obs.results[0])
	}
	if obs.results[1].err == nil || obs.results[1].generation != 1 {
		t.Errorf("second refresh: %+v", obs.results[1])
	}
	if !obs.results[2].rebuilt || obs.results[2].generation != 2 {
		t.Errorf("third refresh: %+v", obs.results[2])
	}
}

func TestManager_ScheduleRefresh(t *testing.T) {
	ca := testpki.NewCA(t, "test-ca")
	snap, _ := pemSnapshot(t, ca, "broker")

	m := NewManager(StaticSource(snap), ManagerOptions{})
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	disabled := &recordingScheduler{}
	if err := m.ScheduleRefresh(disabled, 0); err != nil {
		t.Fatalf("ScheduleRefresh(0) error = %v", err)
	}
	if disabled.task != nil {
		t.Error("expected no job for zero interval")
	}

	sched := &recordingScheduler{}
	if err := m.ScheduleRefresh(sched, 300*time.Second); err != nil {
		t.Fatalf("ScheduleRefresh() error = %v", err)
	}
	if sched.name != RefreshJobName {
		t.Errorf("expected job %q, got %q", RefreshJobName, sched.name)
	}
	if sched.initialDelay != 300*time.Second || sched.delay != 300*time.Second {
		t.Errorf("expected initial delay and delay of 300s, got %v/%v", sched.initialDelay, sched.delay)
	}
	if err := sched.task(context.Background()); err != nil {
		t.Errorf("scheduled task error = %v", err)
	}
}

func TestManager_CheckExpired(t *testing.T) {
	ca := testpki.NewCA(t, "test-ca")
	snap, _ := pemSnapshot(t, ca, "broker")

	m := NewManager(StaticSource(snap), ManagerOptions{})
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	// Simulate the served certificate expiring while the process runs.
	cur := m.Current()
	expired := *cur.Leaf()
	expired.NotAfter = time.Now().Add(-time.Minute)
	cur.leaf = &expired

	if err := m.Check(context.Background()); err == nil {
		t.Error("expected Check() to report the expired certificate")
	}
}

func TestManager_ReportExpiry(t *testing.T) {
	ca := testpki.NewCA(t, "test-ca")
	snap, _ := pemSnapshot(t, ca, "broker")

	obs := &recordingObserver{}
	m := NewManager(StaticSource(snap), ManagerOptions{Observer: obs})

	if err := m.ReportExpiry(context.Background()); !errors.Is(err, ErrTLSNotInitialized) {
		t.Errorf("ReportExpiry() before Initialize = %v, want ErrTLSNotInitialized", err)
	}
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if err := m.ReportExpiry(context.Background()); err != nil {
		t.Fatalf("ReportExpiry() error = %v", err)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if !obs.notAfter.Equal(m.Current().Leaf().NotAfter) {
		t.Errorf("observer saw %v, want %v", obs.notAfter, m.Current().Leaf().NotAfter)
	}
}
