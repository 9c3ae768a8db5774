package preflight

import (
	"context"

	"labeldesk/internal/config"
)

// minFreeUploadBytes is the floor for free space in the upload directory.
const minFreeUploadBytes = 64 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks that must pass before the daemon starts.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Upload directory", cfg.Paths.UploadDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	// Leave room for at least a few uploads at the configured limit.
	minFree := max(uint64(cfg.MaxUploadBytes())*4, minFreeUploadBytes)
	results = append(results, CheckFreeSpace("Upload storage", cfg.Paths.UploadDir, minFree))
	results = append(results, CheckBindAvailable(ctx, "API bind", cfg.Paths.APIBind))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
