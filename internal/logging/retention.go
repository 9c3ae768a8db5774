package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
)

const (
	runLogPattern   = "labeldesk-*.log"
	eventLogPattern = "labeldesk-*.events"
)

// RetentionTarget is a directory and filename pattern eligible for pruning.
// Exclude lists files that must survive regardless of age.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// RunLogTargets covers the per-run console and event logs the daemon writes
// to dir. The files of the current run go in active.
func RunLogTargets(dir string, active ...string) []RetentionTarget {
	return []RetentionTarget{
		{Dir: dir, Pattern: runLogPattern, Exclude: active},
		{Dir: dir, Pattern: eventLogPattern, Exclude: active},
	}
}

// PruneLogs deletes files matching targets whose modification time is more
// than retentionDays old and reports how many were removed. Zero or negative
// retention keeps everything. Files that cannot be removed are reported in
// the returned error; the rest are still pruned.
func PruneLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	var (
		errs    *multierror.Error
		removed int
		freed   uint64
	)
	for _, target := range targets {
		dir := strings.TrimSpace(target.Dir)
		if dir == "" {
			continue
		}
		keep := absPaths(target.Exclude)
		for _, path := range expired(dir, strings.TrimSpace(target.Pattern), cutoff) {
			if _, skip := keep[path.name]; skip {
				continue
			}
			if err := os.Remove(path.name); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("remove %s: %w", path.name, err))
				continue
			}
			removed++
			freed += uint64(path.size)
		}
	}
	if removed > 0 && logger != nil {
		logger.Info("old run logs pruned",
			Int("files", removed),
			String("freed", humanize.Bytes(freed)),
			Int("retention_days", retentionDays),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed, errs.ErrorOrNil()
}

type staleFile struct {
	name string
	size int64
}

// expired lists files in dir matching pattern that were last written before
// cutoff. Unreadable directories yield nothing.
func expired(dir, pattern string, cutoff time.Time) []staleFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []staleFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if pattern != "" {
			if matched, err := filepath.Match(pattern, entry.Name()); err != nil || !matched {
				continue
			}
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		out = append(out, staleFile{name: absPath(filepath.Join(dir, entry.Name())), size: info.Size()})
	}
	return out
}

func absPaths(paths []string) map[string]struct{} {
	out := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if trimmed := strings.TrimSpace(path); trimmed != "" {
			out[absPath(trimmed)] = struct{}{}
		}
	}
	return out
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
