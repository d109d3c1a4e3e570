package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"mercator-hq/conduit/pkg/security/auth"
	"mercator-hq/conduit/pkg/telemetry/health"
	"mercator-hq/conduit/pkg/telemetry/tracing"
)

// RequestIDHeader carries the admin request ID. A caller-supplied value is
// kept.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the ID assigned to an admin request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// startAdmin serves metrics, probes and version information on the admin
// address. An empty address disables the endpoint.
func (s *Server) startAdmin() error {
	addr := s.cfg.Telemetry.AdminAddress
	if addr == "" {
		return nil
	}

	protect, err := s.adminAuth()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	if s.cfg.Telemetry.Metrics.Enabled {
		mux.Handle(s.cfg.Telemetry.Metrics.Path, protect(s.collector.Handler()))
	}
	if s.cfg.Telemetry.Health.Enabled {
		health.MountProbes(mux, s.cfg.Telemetry.Health, s.checker)
	}
	mux.Handle(health.VersionPath, protect(health.VersionHandler(s.version.Version, s.version.Commit, s.version.BuildTime)))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on admin address %s: %w", addr, err)
	}
	s.adminLn = ln
	s.admin = &http.Server{
		Handler:           adminMiddleware(mux, s.logger.With("component", "admin")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.admin.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server error", "error", err)
		}
	}()
	s.logger.Info("admin endpoint started", "address", ln.Addr().String())
	return nil
}

// adminAuth returns the wrapper for admin handlers that require a token.
// Without configured tokens handlers are served as is.
func (s *Server) adminAuth() (func(http.Handler) http.Handler, error) {
	configured := s.cfg.Telemetry.AdminTokens
	if len(configured) == 0 {
		return func(h http.Handler) http.Handler { return h }, nil
	}

	tokens := make([]auth.Token, 0, len(configured))
	for _, t := range configured {
		value, err := s.secrets.ResolveReferences(context.Background(), t.Token)
		if err != nil {
			return nil, fmt.Errorf("admin token %q: %w", t.Name, err)
		}
		tokens = append(tokens, auth.Token{Name: t.Name, Value: value})
	}
	mw := auth.NewMiddleware(auth.NewTokenValidator(tokens), s.logger)
	return mw.Handle, nil
}

// adminMiddleware wraps the admin mux. From the outside in: request ID,
// trace context, access log, panic recovery.
func adminMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return withRequestID(tracing.HTTPMiddleware(withAccessLog(withRecovery(next, logger), logger)))
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func withRecovery(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.ErrorContext(r.Context(), "panic in admin handler",
					"error", err,
					"request_id", RequestID(r.Context()),
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// Flush keeps streaming responses from promhttp working through the wrapper.
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func withAccessLog(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rw, r)

		status := rw.status
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelDebug
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "admin request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", RequestID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}
