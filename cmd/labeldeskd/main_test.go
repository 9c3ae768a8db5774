package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfigReportsParseErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[paths\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := loadConfig(path)
	if err == nil || !strings.HasPrefix(err.Error(), "load config:") {
		t.Fatalf("expected wrapped parse error, got %v", err)
	}
}

func TestDaemonCommandRejectsArguments(t *testing.T) {
	cmd := newDaemonCommand()
	cmd.SetArgs([]string{"extra"})
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected positional arguments to be rejected")
	}
}

func TestDaemonCommandFailsOnBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[dispatch]\nrequired_fields = 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := newDaemonCommand()
	cmd.SetArgs([]string{"--config", path})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected invalid config to stop startup")
	}
}
