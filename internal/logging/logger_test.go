package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"labeldesk/internal/config"
	"labeldesk/internal/logging"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("engine started", logging.String(logging.FieldComponent, "dispatch"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "labeldesk.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "[dispatch]") || !strings.Contains(string(content), "engine started") {
		t.Fatalf("unexpected log content: %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerLiftsSessionAndItem(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("assigned",
		logging.String(logging.FieldSessionID, "0123456789abcdef"),
		logging.String(logging.FieldItemID, "01HXYZ"),
		logging.String(logging.FieldOrigin, "backlog"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "Session 01234567 · Item 01HXYZ - assigned") {
		t.Fatalf("expected subject in header, got %q", text)
	}
	if !strings.Contains(text, "    - origin: backlog") {
		t.Fatalf("expected origin field line, got %q", text)
	}
	if strings.Contains(text, "session_id:") {
		t.Fatalf("expected session id lifted out of fields, got %q", text)
	}
}

func TestJSONLoggerUsesLowercaseLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("backlog drained", logging.Int("remaining", 0))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload["level"] != "warn" {
		t.Fatalf("expected lowercase level, got %v", payload["level"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestTeeLoggerWritesToAllHandlers(t *testing.T) {
	var primary, secondary bytes.Buffer
	base := slog.New(slog.NewTextHandler(&primary, nil))
	tee := logging.TeeLogger(base, slog.NewJSONHandler(&secondary, nil), nil)

	tee.Info("fanned out")

	if !strings.Contains(primary.String(), "fanned out") {
		t.Fatalf("expected primary output, got %q", primary.String())
	}
	if !strings.Contains(secondary.String(), "fanned out") {
		t.Fatalf("expected secondary output, got %q", secondary.String())
	}
}

func TestTeeLoggerWithoutHandlersIsNop(t *testing.T) {
	logger := logging.TeeLogger(nil)
	logger.Info("discarded")
	if logger.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected nop logger")
	}
}

func TestPruneLogsKeepsActiveAndFreshRuns(t *testing.T) {
	dir := t.TempDir()
	oldRun := filepath.Join(dir, "labeldesk-20260101T000000.log")
	oldEvents := filepath.Join(dir, "labeldesk-20260101T000000.events")
	activeRun := filepath.Join(dir, "labeldesk-20260102T000000.log")
	freshRun := filepath.Join(dir, "labeldesk-20260110T000000.log")
	unrelated := filepath.Join(dir, "notes.txt")
	for _, path := range []string{oldRun, oldEvents, activeRun, freshRun, unrelated} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, path := range []string{oldRun, oldEvents, activeRun, unrelated} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed, err := logging.PruneLogs(logging.NewNop(), 5, logging.RunLogTargets(dir, activeRun)...)
	if err != nil {
		t.Fatalf("PruneLogs: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	for _, path := range []string{oldRun, oldEvents} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, stat err=%v", path, err)
		}
	}
	for _, path := range []string{activeRun, freshRun, unrelated} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
}

func TestPruneLogsDisabledByZeroRetention(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "labeldesk-old.log")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	past := time.Now().AddDate(0, -1, 0)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if removed, err := logging.PruneLogs(logging.NewNop(), 0, logging.RunLogTargets(dir)...); removed != 0 || err != nil {
		t.Fatalf("PruneLogs = %d, %v", removed, err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log kept: %v", err)
	}
}

func TestConsoleLoggerTruncatesLongValues(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-long.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("assigned",
		logging.String("image", "data:image/png;base64,"+strings.Repeat("A", 1000)),
		logging.Duration("took", 1234567*time.Microsecond),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	if strings.Count(text, "A") > 300 || !strings.Contains(text, "bytes)") {
		t.Fatalf("expected truncated image value, got %q", text)
	}
	if !strings.Contains(text, "    - took: 1.235s") {
		t.Fatalf("expected duration rounded to milliseconds, got %q", text)
	}
}
