package events

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"mcpgate/internal/security"
)

func TestOpenWithoutDSNUsesLogWriter(t *testing.T) {
	w := Open("", zap.NewNop())
	defer w.Close()
	if _, ok := w.(*LogWriter); !ok {
		t.Fatalf("expected log writer, got %T", w)
	}
}

func TestOpenFallsBackOnBadDSN(t *testing.T) {
	w := Open("not a dsn ://", zap.NewNop())
	defer w.Close()
	if _, ok := w.(*LogWriter); !ok {
		t.Fatalf("expected fallback log writer, got %T", w)
	}
}

func TestLogWriterEmitsFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w := NewLogWriter(zap.New(core))
	w.Write(CallEvent("calculate_roi", "custom:business-tools", time.Now(), errors.New("boom")))
	entries := logs.FilterMessage("gateway_event").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["kind"] != KindCall || fields["tool_name"] != "calculate_roi" || fields["success"] != false || fields["error"] != "boom" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestScanEvent(t *testing.T) {
	res := security.ScanResult{
		ProviderID:      "p1",
		SourceLocation:  "https://github.com/acme/x",
		RiskScore:       100,
		Vulnerabilities: []security.Vulnerability{{Category: security.CategoryScanError}},
		FailClosed:      true,
		StageDetails:    map[string]string{"revision": "abc123"},
		Duration:        1500 * time.Millisecond,
	}
	e := ScanEvent(res)
	if e.Kind != KindScan || e.RiskScore != 100 || e.Findings != 1 || e.Success {
		t.Fatalf("unexpected scan event %+v", e)
	}
	if e.Metadata["fail_closed"] != "true" || e.Metadata["revision"] != "abc123" {
		t.Fatalf("unexpected metadata %v", e.Metadata)
	}
	if e.LatencyMs != 1500 {
		t.Fatalf("expected 1500ms latency, got %v", e.LatencyMs)
	}
	if e.EventID == "" {
		t.Fatalf("expected event id")
	}
}
