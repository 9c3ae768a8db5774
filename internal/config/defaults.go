package config

const (
	defaultConfigPath             = "~/.config/labeldesk/config.toml"
	defaultDataDir                = "~/.local/share/labeldesk"
	defaultUploadDir              = "~/.local/share/labeldesk/uploads"
	defaultLogDir                 = "~/.local/share/labeldesk/logs"
	defaultAPIBind                = "127.0.0.1:7488"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	defaultValidateTimeoutSeconds = 10
	defaultByteCacheTTLSeconds    = 300
	defaultByteCacheMaxItems      = 64
	defaultSubscriberBuffer       = 16
	defaultMaxUploadMiB           = 100
	defaultNotifyRequestTimeout   = 10
)

// DefaultRequiredFields are the result fields every image must carry.
var DefaultRequiredFields = []string{"result", "btn_1", "btn_2"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			UploadDir: defaultUploadDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Dispatch: Dispatch{
			RequiredFields:         append([]string(nil), DefaultRequiredFields...),
			ValidateTimeoutSeconds: defaultValidateTimeoutSeconds,
			ByteCacheTTLSeconds:    defaultByteCacheTTLSeconds,
			ByteCacheMaxItems:      defaultByteCacheMaxItems,
			SubscriberBuffer:       defaultSubscriberBuffer,
			MaxUploadMiB:           defaultMaxUploadMiB,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			BacklogDrained: true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
