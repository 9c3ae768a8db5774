package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"labeldesk/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("LABELDESK_API_TOKEN", "")
	t.Setenv("NTFY_TOPIC", "")
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantUploads := filepath.Join(tempHome, ".local", "share", "labeldesk", "uploads")
	if cfg.Paths.UploadDir != wantUploads {
		t.Fatalf("unexpected upload dir: got %q want %q", cfg.Paths.UploadDir, wantUploads)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if strings.Join(cfg.Dispatch.RequiredFields, ",") != "result,btn_1,btn_2" {
		t.Fatalf("unexpected required fields: %v", cfg.Dispatch.RequiredFields)
	}
	if cfg.ValidateTimeout() != 10*time.Second {
		t.Fatalf("unexpected validate timeout: %s", cfg.ValidateTimeout())
	}
	if cfg.MaxUploadBytes() != 100<<20 {
		t.Fatalf("unexpected upload limit: %d", cfg.MaxUploadBytes())
	}
	if cfg.DatabasePath() != filepath.Join(cfg.Paths.DataDir, "items.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.UploadDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "labeldesk.toml")

	type payload struct {
		Paths struct {
			UploadDir string `toml:"upload_dir"`
			APIBind   string `toml:"api_bind"`
		} `toml:"paths"`
		Dispatch struct {
			RequiredFields []string `toml:"required_fields"`
		} `toml:"dispatch"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.UploadDir = filepath.Join(tempDir, "images")
	custom.Paths.APIBind = "0.0.0.0:9000"
	custom.Dispatch.RequiredFields = []string{" Label ", "label", "", "Box"}
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.UploadDir != custom.Paths.UploadDir {
		t.Fatalf("unexpected upload dir: %q", cfg.Paths.UploadDir)
	}
	if cfg.Paths.APIBind != "0.0.0.0:9000" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if strings.Join(cfg.Dispatch.RequiredFields, ",") != "label,box" {
		t.Fatalf("expected normalized required fields, got %v", cfg.Dispatch.RequiredFields)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsInvalidBind(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "labeldesk.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\napi_bind = \"nonsense\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil || !strings.Contains(err.Error(), "paths.api_bind") {
		t.Fatalf("expected api_bind validation error, got %v", err)
	}
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LABELDESK_API_TOKEN", " secret ")
	t.Setenv("NTFY_TOPIC", "https://ntfy.example/labels")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIToken != "secret" {
		t.Fatalf("expected token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/labels" {
		t.Fatalf("expected ntfy topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestValidateRejectsNonPositiveTimeout(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatch.ValidateTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "validate_timeout_seconds") {
		t.Fatalf("expected timeout validation error, got %v", err)
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Dispatch.SubscriberBuffer != 16 {
		t.Fatalf("unexpected subscriber buffer: %d", cfg.Dispatch.SubscriberBuffer)
	}
}
