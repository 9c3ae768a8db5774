package preflight

import (
	"context"
	"math"
	"net"
	"os"
	"path/filepath"
	"testing"

	"labeldesk/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if result := CheckFreeSpace("space", dir, 1); !result.Passed {
		t.Fatalf("expected pass with a 1 byte floor, got: %s", result.Detail)
	}
	if result := CheckFreeSpace("space", dir, math.MaxUint64); result.Passed {
		t.Fatal("expected failure with an impossible floor")
	}
	if result := CheckFreeSpace("space", filepath.Join(dir, "nope"), 1); result.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestCheckBindAvailable(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	defer busy.Close()

	if result := CheckBindAvailable(context.Background(), "bind", busy.Addr().String()); result.Passed {
		t.Fatal("expected failure for an address in use")
	}
	if result := CheckBindAvailable(context.Background(), "bind", "127.0.0.1:0"); !result.Passed {
		t.Fatalf("expected pass for an ephemeral port, got: %s", result.Detail)
	}
}

func TestRunAllReportsMissingDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithMaxUploadMiB(1))
	results := RunAll(context.Background(), cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	// Directories are created by the store, not by the config helper.
	if failed := Failed(results); len(failed) < 3 {
		t.Fatalf("expected directory checks to fail before creation, got %#v", failed)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if failed := Failed(RunAll(context.Background(), cfg)); len(failed) != 0 {
		t.Fatalf("expected all checks to pass, got %#v", failed)
	}
}
