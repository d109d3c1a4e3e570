package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/conduit/internal/echo"
	"mercator-hq/conduit/internal/testpki"
	"mercator-hq/conduit/pkg/config"
	"mercator-hq/conduit/pkg/pipeline"
	ctls "mercator-hq/conduit/pkg/security/tls"
	"mercator-hq/conduit/pkg/telemetry/health"
	"mercator-hq/conduit/pkg/telemetry/metrics"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig returns a configuration with a plain listener and, when
// withTLS is set, a TLS listener backed by freshly issued certificates.
func testConfig(t *testing.T, withTLS bool) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Listeners = []config.ListenerConfig{{Name: "plain", Address: "127.0.0.1:0"}}
	cfg.Telemetry.AdminAddress = "127.0.0.1:0"
	cfg.Broker.ShutdownTimeout = 5 * time.Second

	if withTLS {
		ca := testpki.NewCA(t, "conduit test CA")
		files := ca.WriteServerFiles(t, t.TempDir(), "broker")
		cfg.Listeners = append(cfg.Listeners, config.ListenerConfig{
			Name: "secure", Address: "127.0.0.1:0", TLS: true,
		})
		cfg.Security.TLS.CertificateFilePath = files.Cert
		cfg.Security.TLS.KeyFilePath = files.Key
	}
	return cfg
}

func startServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()

	checker := health.New(time.Second)
	srv, err := New(cfg, echo.NewFactory(checker, discardLogger(), echo.WithReadyInterval(5*time.Millisecond)),
		WithLogger(discardLogger()),
		WithChecker(checker),
		WithCollector(metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())),
		WithVersion(health.VersionInfo{Version: "test"}),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func poolOf(certs []*x509.Certificate) *x509.CertPool {
	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c)
	}
	return pool
}

func listenerAddr(t *testing.T, srv *Server, name string) string {
	t.Helper()
	l, ok := srv.Listener(name)
	if !ok {
		t.Fatalf("listener %q not found", name)
	}
	return l.Addr().String()
}

func echoRoundTrip(t *testing.T, conn net.Conn, msg string) {
	t.Helper()

	buf := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(buf, uint32(len(msg)))
	copy(buf[4:], msg)
	if _, err := conn.Write(buf); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var hdr [4]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		t.Fatalf("read frame header: %v", err)
	}
	got := make([]byte, binary.BigEndian.Uint32(hdr[:]))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("read frame payload: %v", err)
	}
	if string(got) != msg {
		t.Errorf("echo = %q, want %q", got, msg)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, echo.NewFactory(nil, nil)); err == nil {
		t.Error("New() with nil config should fail")
	}
	if _, err := New(config.DefaultConfig(), nil); err == nil {
		t.Error("New() with nil handler factory should fail")
	}
}

func TestServer_PlainEcho(t *testing.T) {
	srv := startServer(t, testConfig(t, false))

	conn, err := net.Dial("tcp", listenerAddr(t, srv, "plain"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	echoRoundTrip(t, conn, "hello")
	echoRoundTrip(t, conn, "again")

	if got := srv.ActiveChannels(); got != 1 {
		t.Errorf("ActiveChannels() = %d, want 1", got)
	}
}

func TestServer_TLSEcho(t *testing.T) {
	cfg := testConfig(t, true)
	srv := startServer(t, cfg)

	pool, err := ctls.LoadCertificates(filepath.Join(filepath.Dir(cfg.Security.TLS.CertificateFilePath), "ca.crt"))
	if err != nil {
		t.Fatalf("LoadCertificates() error = %v", err)
	}
	roots := poolOf(pool)

	conn, err := tls.Dial("tcp", listenerAddr(t, srv, "secure"), &tls.Config{
		RootCAs:    roots,
		ServerName: "localhost",
	})
	if err != nil {
		t.Fatalf("tls dial: %v", err)
	}
	defer conn.Close()

	echoRoundTrip(t, conn, "secret")

	if !srv.TLSManager().Initialized() {
		t.Error("TLS manager should be initialized")
	}
}

func TestServer_ListenerPlans(t *testing.T) {
	srv := startServer(t, testConfig(t, true))

	tests := []struct {
		listener string
		tls      bool
	}{
		{"plain", false},
		{"secure", true},
	}
	for _, tt := range tests {
		t.Run(tt.listener, func(t *testing.T) {
			l, ok := srv.Listener(tt.listener)
			if !ok {
				t.Fatalf("listener %q not found", tt.listener)
			}
			if l.Options().EnableTLS != tt.tls {
				t.Errorf("EnableTLS = %v, want %v", l.Options().EnableTLS, tt.tls)
			}
			hasTLS := slices.Contains(l.Plan().Names(), pipeline.TLSStageName)
			if hasTLS != tt.tls {
				t.Errorf("plan %v: tls stage present = %v, want %v", l.Plan().Names(), hasTLS, tt.tls)
			}
		})
	}
}

func TestServer_SchedulesTLSJobs(t *testing.T) {
	srv := startServer(t, testConfig(t, true))

	var names []string
	for _, j := range srv.Scheduler().Jobs() {
		names = append(names, j.Name)
	}
	for _, want := range []string{ctls.RefreshJobName, ExpiryCheckJobName} {
		if !slices.Contains(names, want) {
			t.Errorf("jobs %v missing %q", names, want)
		}
	}
}

func TestServer_NoTLSJobsWithoutTLSListener(t *testing.T) {
	srv := startServer(t, testConfig(t, false))

	if jobs := srv.Scheduler().Jobs(); len(jobs) != 0 {
		t.Errorf("got %d jobs, want none", len(jobs))
	}
	if srv.TLSManager().Initialized() {
		t.Error("TLS manager should not be initialized without a TLS listener")
	}
}

func TestServer_RefusesToStartWithoutTLSContext(t *testing.T) {
	cfg := testConfig(t, true)
	cfg.Security.TLS.CertificateFilePath = filepath.Join(t.TempDir(), "missing.crt")

	srv, err := New(cfg, echo.NewFactory(nil, nil), WithLogger(discardLogger()),
		WithCollector(metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = srv.Start(context.Background())
	var loadErr *ctls.CredentialLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Start() error = %v, want *CredentialLoadError", err)
	}
	if srv.IsRunning() {
		t.Error("server should not be running")
	}
	if len(srv.Listeners()) != 0 {
		t.Error("no listener should be bound")
	}
}

func TestServer_StartTwice(t *testing.T) {
	srv := startServer(t, testConfig(t, false))

	if err := srv.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() = %v, want ErrAlreadyRunning", err)
	}
}

func TestServer_AdminEndpoint(t *testing.T) {
	srv := startServer(t, testConfig(t, false))

	conn, err := net.Dial("tcp", listenerAddr(t, srv, "plain"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	echoRoundTrip(t, conn, "count me")
	_ = conn.Close()

	base := "http://" + srv.AdminAddr().String()
	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{"/health", http.StatusOK, `"status":"ok"`},
		{"/ready", http.StatusOK, `"status":"ready"`},
		{"/version", http.StatusOK, `"version":"test"`},
		{"/metrics", http.StatusOK, "conduit_broker_channels_total"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(base + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
			if !strings.Contains(string(body), tt.contains) {
				t.Errorf("body does not contain %q:\n%s", tt.contains, body)
			}
		})
	}
}

func TestServer_AdminTokens(t *testing.T) {
	t.Setenv("CONDUIT_SECRET_ADMIN_TOKEN", "s3cret")

	cfg := testConfig(t, false)
	cfg.Telemetry.AdminTokens = []config.AdminTokenConfig{
		{Name: "ops", Token: "${secret:admin-token}"},
	}
	srv := startServer(t, cfg)
	base := "http://" + srv.AdminAddr().String()

	tests := []struct {
		name     string
		path     string
		token    string
		wantCode int
	}{
		{"metrics without token", "/metrics", "", http.StatusUnauthorized},
		{"metrics with wrong token", "/metrics", "nope", http.StatusUnauthorized},
		{"metrics with token", "/metrics", "s3cret", http.StatusOK},
		{"version without token", "/version", "", http.StatusUnauthorized},
		{"version with token", "/version", "s3cret", http.StatusOK},
		{"liveness stays open", "/health", "", http.StatusOK},
		{"readiness stays open", "/ready", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, base+tt.path, nil)
			if err != nil {
				t.Fatalf("NewRequest: %v", err)
			}
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			_ = resp.Body.Close()

			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
		})
	}
}

func TestServer_AdminTokenUnresolved(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.Telemetry.AdminTokens = []config.AdminTokenConfig{
		{Name: "ops", Token: "${secret:conduit-test-missing-token}"},
	}
	srv, err := New(cfg, echo.NewFactory(nil, discardLogger()), WithLogger(discardLogger()),
		WithCollector(metrics.NewCollector(&cfg.Telemetry.Metrics, prometheus.NewRegistry())))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		_ = srv.Shutdown(context.Background())
		t.Fatal("Start() should fail when an admin token cannot be resolved")
	}
	if srv.IsRunning() {
		t.Error("server should not be running")
	}
	if got := len(srv.Listeners()); got != 0 {
		t.Errorf("Listeners() = %d, want 0 after failed start", got)
	}
}

func TestServer_RejectsConnectionsOverPerIPLimit(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.Broker.MaxConnectionsPerIP = 1
	srv := startServer(t, cfg)
	addr := listenerAddr(t, srv, "plain")

	first, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer first.Close()
	echoRoundTrip(t, first, "first")

	second, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer second.Close()
	_ = second.SetReadDeadline(time.Now().Add(5 * time.Second))
	var buf [1]byte
	_, err = second.Read(buf[:])
	var nerr net.Error
	if err == nil || (errors.As(err, &nerr) && nerr.Timeout()) {
		t.Fatalf("second connection should be closed by the server, read error = %v", err)
	}

	echoRoundTrip(t, first, "still served")
	if got := srv.ActiveChannels(); got != 1 {
		t.Errorf("ActiveChannels() = %d, want 1", got)
	}
}

func TestServer_ShutdownClosesConnections(t *testing.T) {
	srv := startServer(t, testConfig(t, false))
	addr := listenerAddr(t, srv, "plain")

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	echoRoundTrip(t, conn, "before shutdown")

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("connection should be closed after shutdown")
	}
	if srv.ActiveChannels() != 0 {
		t.Errorf("ActiveChannels() = %d, want 0", srv.ActiveChannels())
	}
	if srv.IsRunning() {
		t.Error("server should not be running")
	}
	if _, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		t.Error("listener should be closed after shutdown")
	}
}
