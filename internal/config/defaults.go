package config

import "quill/internal/language"

const (
	defaultConfigPath       = "~/.config/quill/config.toml"
	defaultStateDir         = "~/.local/share/quill"
	defaultServerPort       = 8081
	defaultBindHost         = "127.0.0.1"
	defaultDebounceMS       = 300
	maxDebounceMS           = 10000
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 14
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			RunOnStartup: false,
			Port:         defaultServerPort,
			BindHost:     defaultBindHost,
		},
		Checking: Checking{
			Language:        language.Fallback,
			BackgroundCheck: true,
			DebounceMS:      defaultDebounceMS,
		},
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
