package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDispatch()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.UploadDir) == "" {
		c.Paths.UploadDir = defaultUploadDir
	}
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return fmt.Errorf("paths.upload_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("LABELDESK_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeDispatch() {
	fields := make([]string, 0, len(c.Dispatch.RequiredFields))
	seen := make(map[string]struct{}, len(c.Dispatch.RequiredFields))
	for _, field := range c.Dispatch.RequiredFields {
		normalized := strings.ToLower(strings.TrimSpace(field))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		fields = append(fields, normalized)
	}
	if len(fields) == 0 {
		fields = append(fields, DefaultRequiredFields...)
	}
	c.Dispatch.RequiredFields = fields
	if c.Dispatch.ByteCacheMaxItems <= 0 {
		c.Dispatch.ByteCacheMaxItems = defaultByteCacheMaxItems
	}
	if c.Dispatch.SubscriberBuffer <= 0 {
		c.Dispatch.SubscriberBuffer = defaultSubscriberBuffer
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
