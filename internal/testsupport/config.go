package testsupport

import (
	"path/filepath"
	"testing"

	"labeldesk/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.UploadDir = filepath.Join(base, "uploads")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Dispatch.ValidateTimeoutSeconds = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithRequiredFields overrides the result fields that mark an item complete.
func WithRequiredFields(fields ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dispatch.RequiredFields = append([]string(nil), fields...)
	}
}

// WithAPIToken sets the bearer token for operator endpoints.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithMaxUploadMiB overrides the upload size limit.
func WithMaxUploadMiB(mib int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Dispatch.MaxUploadMiB = mib
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
