package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/conduit/pkg/config"
)

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{"always", SamplerAlways, 0, false},
		{"never", SamplerNever, 0, false},
		{"ratio 0%", SamplerRatio, 0, false},
		{"ratio 50%", SamplerRatio, 0.5, false},
		{"ratio 100%", SamplerRatio, 1, false},
		{"empty defaults to ratio", "", 0.1, false},
		{"negative ratio", SamplerRatio, -0.1, true},
		{"ratio above one", SamplerRatio, 1.5, true},
		{"unknown strategy", "sometimes", 0.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := newSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && s == nil {
				t.Error("expected a sampler")
			}
		})
	}
}

func TestNewSampler_Decisions(t *testing.T) {
	tests := []struct {
		strategy string
		want     sdktrace.SamplingDecision
	}{
		{SamplerAlways, sdktrace.RecordAndSample},
		{SamplerNever, sdktrace.Drop},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			s, err := newSampler(tt.strategy, 0)
			if err != nil {
				t.Fatalf("newSampler() error = %v", err)
			}
			res := s.ShouldSample(sdktrace.SamplingParameters{
				ParentContext: context.Background(),
				Name:          "tls.refresh",
			})
			if res.Decision != tt.want {
				t.Errorf("decision = %v, want %v", res.Decision, tt.want)
			}
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	p, err := New(context.Background(), &config.TracingConfig{ServiceName: "conduit"}, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Enabled() {
		t.Error("expected tracing to be disabled")
	}

	_, span := otel.Tracer("test").Start(context.Background(), "pipeline.assemble")
	if span.SpanContext().IsValid() {
		t.Error("expected a no-op span")
	}
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestNew_Enabled(t *testing.T) {
	cfg := &config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerAlways,
		Endpoint:    "127.0.0.1:4317",
		ServiceName: "conduit",
		Insecure:    true,
		Timeout:     100 * time.Millisecond,
	}
	p, err := New(context.Background(), cfg, "test")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !p.Enabled() {
		t.Error("expected tracing to be enabled")
	}

	_, span := p.Tracer().Start(context.Background(), "tls.refresh")
	if !span.SpanContext().IsSampled() {
		t.Error("expected the span to be sampled")
	}
	span.End()

	// No collector is listening; Shutdown may report the failed export.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.Shutdown(ctx)
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(context.Background(), nil, "test"); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestHTTPMiddleware(t *testing.T) {
	if _, err := New(context.Background(), &config.TracingConfig{ServiceName: "conduit"}, "test"); err != nil {
		t.Fatalf("New() error = %v", err)
	}

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	tests := []struct {
		name        string
		traceparent string
		wantTraceID string
	}{
		{"no trace context", "", ""},
		{"valid traceparent", "00-" + traceID + "-00f067aa0ba902b7-01", traceID},
		{"malformed traceparent", "00-zz-00f067aa0ba902b7-01", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen trace.SpanContext
			h := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = trace.SpanContextFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.traceparent != "" {
				req.Header.Set("traceparent", tt.traceparent)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get(TraceIDHeader); got != tt.wantTraceID {
				t.Errorf("%s = %q, want %q", TraceIDHeader, got, tt.wantTraceID)
			}
			if seen.IsValid() != (tt.wantTraceID != "") {
				t.Errorf("handler span context valid = %v", seen.IsValid())
			}
		})
	}
}
