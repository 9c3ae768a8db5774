package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateDispatch(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.UploadDir == "" {
		return errors.New("paths.upload_dir must be set")
	}
	if filepath.Clean(c.Paths.UploadDir) == filepath.Clean(c.Paths.LogDir) {
		return errors.New("paths.upload_dir and paths.log_dir must differ")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateDispatch() error {
	if len(c.Dispatch.RequiredFields) == 0 {
		return errors.New("dispatch.required_fields must include at least one field")
	}
	return ensurePositiveMap(map[string]int{
		"dispatch.validate_timeout_seconds": c.Dispatch.ValidateTimeoutSeconds,
		"dispatch.max_upload_mib":           c.Dispatch.MaxUploadMiB,
	})
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
