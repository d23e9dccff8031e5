package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			RemoteURL:    "",
			Headless:     false,
			Bin:          "",
			UserData:     "",
			ActivePollMS: 1000,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8722,
		},
		Storage: StorageConfig{
			Path:              "~/.config/tabtidy",
			SQLiteFile:        "tabtidy.db",
			SQLiteJournalMode: "wal",
		},
		Suspend: SuspendConfig{
			ActivityFlushMS:    1000,
			IndexFlushMS:       100,
			SettleDelayMS:      1000,
			DiscardTimeoutMS:   30000,
			TidyThresholdSec:   60,
			ShortIntervalSec:   15,
			LongIntervalSec:    60,
			CheckUnsavedForms:  true,
			SystemPagePrefixes: DefaultSystemPrefixes(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File:   "",
		},
	}
}
