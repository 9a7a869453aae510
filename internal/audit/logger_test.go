package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLogNoopForNilLoggerAndEmptyPath(t *testing.T) {
	var nilLogger *Logger
	if err := nilLogger.Log(Event{Operation: OpApprove}); err != nil {
		t.Fatalf("nil logger should be noop: %v", err)
	}
	if err := New("").Log(Event{Operation: OpApprove}); err != nil {
		t.Fatalf("empty-path logger should be noop: %v", err)
	}
	if events, err := nilLogger.Tail(5); err != nil || events != nil {
		t.Fatalf("nil logger tail should be empty, got %v err=%v", events, err)
	}
}

func TestLogWritesJSONLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit", "events.log")
	logger := New(logPath)
	logger.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	first := Event{
		Operation: OpApprove,
		Actor:     "alice",
		Target:    "community/widget",
		Status:    "ok",
		Fields:    map[string]string{"note": "reviewed source"},
	}
	second := Event{Operation: OpDisable, Target: "community/widget", Status: "ok"}

	if err := logger.Log(first); err != nil {
		t.Fatalf("log first event: %v", err)
	}
	if err := logger.Log(second); err != nil {
		t.Fatalf("log second event: %v", err)
	}

	blob, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(blob)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(lines))
	}
	var got Event
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("unmarshal first event: %v", err)
	}
	if got.Timestamp != "2026-03-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp %q", got.Timestamp)
	}
	if got.Actor != "alice" || got.Target != "community/widget" || got.Fields["note"] != "reviewed source" {
		t.Fatalf("unexpected first event body: %+v", got)
	}
}

func TestTailReturnsMostRecent(t *testing.T) {
	logger := New(filepath.Join(t.TempDir(), "audit.log"))
	for _, op := range []string{OpAddEntry, OpEnable, OpScan, OpDisable} {
		if err := logger.Log(Event{Operation: op, Status: "ok"}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	events, err := logger.Tail(2)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(events) != 2 || events[0].Operation != OpScan || events[1].Operation != OpDisable {
		t.Fatalf("expected last two events, got %+v", events)
	}
}

func TestTailMissingFile(t *testing.T) {
	events, err := New(filepath.Join(t.TempDir(), "absent.log")).Tail(10)
	if err != nil || len(events) != 0 {
		t.Fatalf("expected no events, got %v err=%v", events, err)
	}
}

func TestLogMkdirAllFailure(t *testing.T) {
	blockedPath := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(blockedPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("create blocking file: %v", err)
	}
	logger := New(filepath.Join(blockedPath, "events.log"))
	if err := logger.Log(Event{Operation: OpEnable}); err == nil {
		t.Fatalf("expected mkdir failure")
	}
}
