package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteAtomic(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out.png")

	n, err := WriteAtomic(dst, strings.NewReader("hello world"), 64)
	if err != nil {
		t.Fatal(err)
	}
	if n != 11 {
		t.Fatalf("written = %d, want 11", n)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("content mismatch: got %q", got)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the destination file, got %d entries", len(entries))
	}
}

func TestWriteAtomicRejectsOversize(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "big.png")

	_, err := WriteAtomic(dst, strings.NewReader(strings.Repeat("x", 32)), 16)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Fatalf("destination should not exist, stat err = %v", statErr)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("temp file left behind: %d entries", len(entries))
	}
}

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")

	content := []byte("verified copy content")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFileVerified(src, dst, 0); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestCopyFileVerifiedLimit(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	if err := os.WriteFile(src, []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := CopyFileVerified(src, filepath.Join(dir, "dst.bin"), 4)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestCopyFileVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := CopyFileVerified(filepath.Join(dir, "missing"), filepath.Join(dir, "dst"), 0)
	if err == nil {
		t.Fatal("expected error for missing source")
	}
}
