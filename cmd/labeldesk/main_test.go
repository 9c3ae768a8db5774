package main

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"labeldesk/internal/api"
	"labeldesk/internal/testsupport"
)

func TestCLICommandsAgainstDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	requireContains(t, out, "Dispatching started")

	out, _, err = runCLI(t, []string{"start"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	requireContains(t, out, "already running")

	src := filepath.Join(t.TempDir(), "shot.png")
	testsupport.WritePNG(t, src)
	out, _, err = runCLI(t, []string{"add", src}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	requireContains(t, out, "Added shot.png as item ")
	id := strings.TrimSpace(out[strings.LastIndex(out, " ")+1:])

	out, _, err = runCLI(t, []string{"items"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	requireContains(t, out, id)
	requireContains(t, out, "btn_1=-")
	requireContains(t, out, "1 item(s)")

	out, _, err = runCLI(t, []string{"items", "--ids"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("items --ids: %v", err)
	}
	if strings.TrimSpace(out) != id {
		t.Fatalf("items --ids = %q, want %q", out, id)
	}

	out, _, err = runCLI(t, []string{"items", "--json", "--filter", "incomplete"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("items --json: %v", err)
	}
	var listed api.ItemListResponse
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode items json: %v", err)
	}
	if listed.Count != 1 || len(listed.Items) != 1 || listed.Items[0].Complete {
		t.Fatalf("unexpected listing %#v", listed)
	}

	out, _, err = runCLI(t, []string{"items", "--filter", "complete"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("items --filter complete: %v", err)
	}
	requireContains(t, out, "No items")

	if _, _, err := runCLI(t, []string{"items", "--filter", "bogus"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown filter to fail")
	}

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "[OK] pid")
	requireContains(t, out, "No workers connected")

	out, _, err = runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Notification not sent")

	out, _, err = runCLI(t, []string{"stop"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Dispatching stopped")

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status after stop: %v", err)
	}
	requireContains(t, out, "[WARN] stopped")
}

func TestAddRejectsUnsupportedFiles(t *testing.T) {
	env := setupCLITestEnv(t)

	notes := filepath.Join(t.TempDir(), "notes.txt")
	testsupport.WriteFile(t, notes, 8)
	_, _, err := runCLI(t, []string{"add", notes}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unsupported image extension") {
		t.Fatalf("expected extension error, got %v", err)
	}

	_, _, err = runCLI(t, []string{"add", filepath.Join(t.TempDir(), "gone.png")}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestStatusWithoutDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(t.TempDir(), "absent.sock")

	out, _, err := runCLI(t, []string{"status"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "socket unavailable")

	_, _, err = runCLI(t, []string{"items"}, missing, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "labeldesk run") {
		t.Fatalf("expected dial hint, got %v", err)
	}
}

func TestSummarizeFields(t *testing.T) {
	got := summarizeFields(map[string]*string{
		"btn_2":  nil,
		"result": testsupport.Value("cat"),
		"btn_1":  testsupport.Value("yes"),
	})
	if want := "btn_1=yes btn_2=- result=cat"; got != want {
		t.Fatalf("summarizeFields = %q, want %q", got, want)
	}
}
