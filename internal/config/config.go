package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	UploadDir string `toml:"upload_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Dispatch contains configuration for work distribution.
type Dispatch struct {
	// RequiredFields lists the result fields that must all be non-null for an
	// item to count as complete.
	RequiredFields         []string `toml:"required_fields"`
	ValidateTimeoutSeconds int      `toml:"validate_timeout_seconds"`
	ByteCacheTTLSeconds    int      `toml:"byte_cache_ttl_seconds"`
	ByteCacheMaxItems      int      `toml:"byte_cache_max_items"`
	SubscriberBuffer       int      `toml:"subscriber_buffer"`
	MaxUploadMiB           int      `toml:"max_upload_mib"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	BacklogDrained bool   `toml:"backlog_drained"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for labeldesk.
//
// Configuration sections by subsystem:
//   - Paths: data, upload, and log directories plus the API bind address
//   - Dispatch: completion rules and assignment tuning
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Dispatch      Dispatch      `toml:"dispatch"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("labeldesk.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.UploadDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the item metadata database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "items.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "labeldesk.lock")
}

// SocketPath returns the IPC control socket path.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.DataDir, "labeldesk.sock")
}

// ValidateTimeout bounds a single item store check during assignment.
func (c *Config) ValidateTimeout() time.Duration {
	return time.Duration(c.Dispatch.ValidateTimeoutSeconds) * time.Second
}

// ByteCacheTTL is how long fetched image bytes stay cached.
func (c *Config) ByteCacheTTL() time.Duration {
	return time.Duration(c.Dispatch.ByteCacheTTLSeconds) * time.Second
}

// MaxUploadBytes is the upload size limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Dispatch.MaxUploadMiB) << 20
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
