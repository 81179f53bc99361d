package otelx

import (
	"context"
	"testing"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4317")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")

	cfg := ConfigFromEnv("booking-service")
	if !cfg.Enabled {
		t.Fatal("expected tracing enabled")
	}
	if cfg.OTLPEndpoint != "collector:4317" {
		t.Fatalf("expected scheme to be stripped, got %q", cfg.OTLPEndpoint)
	}
	if cfg.SampleRatio != 0.25 {
		t.Fatalf("unexpected sample ratio %v", cfg.SampleRatio)
	}

	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	if got := ConfigFromEnv("booking-service").SampleRatio; got != 1 {
		t.Fatalf("out of range ratio should fall back to 1, got %v", got)
	}
}

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false, ServiceName: "booking-service"})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestTraceContextRoundTripWithoutSpan(t *testing.T) {
	ctx := ContextWithTraceContext(context.Background(), "", "")
	if ctx != context.Background() {
		t.Fatal("empty trace context should return the parent context")
	}
	tp, ts := TraceContextStrings(context.Background())
	if tp != "" || ts != "" {
		t.Fatalf("expected no trace context, got %q %q", tp, ts)
	}
}
