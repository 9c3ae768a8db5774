package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"labeldesk/internal/config"
	"labeldesk/internal/daemon"
	"labeldesk/internal/ipc"
	"labeldesk/internal/logging"
	"labeldesk/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	t.Setenv("LABELDESK_API_TOKEN", "")
	t.Setenv("NTFY_TOPIC", "")
	cfg := testsupport.NewConfig(t, testsupport.WithMaxUploadMiB(1))
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(homeDir, ".config", "labeldesk", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	d, err := daemon.New(cfg, store, logger, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		server:     srv,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nupload_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[dispatch]\nmax_upload_mib = %d\nvalidate_timeout_seconds = %d\n",
		cfg.Paths.DataDir,
		cfg.Paths.UploadDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Dispatch.MaxUploadMiB,
		cfg.Dispatch.ValidateTimeoutSeconds,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
