package config

import (
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "ALARMD"

// envOverrides lists the variables read by ApplyEnv, e.g. ALARMD_LOG_LEVEL.
type envOverrides struct {
	LogLevel      string `envconfig:"LOG_LEVEL"`
	StorageDriver string `envconfig:"STORAGE_DRIVER"`
	StoragePath   string `envconfig:"STORAGE_PATH"`
	Backend       string `envconfig:"BACKEND"`
	Timezone      string `envconfig:"TIMEZONE"`
	MetricsAddr   string `envconfig:"METRICS_ADDR"`
}

// ApplyEnv overlays non-empty ALARMD_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var o envOverrides
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return err
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.StorageDriver != "" {
		cfg.Storage.Driver = o.StorageDriver
	}
	if o.StoragePath != "" {
		cfg.Storage.Path = o.StoragePath
	}
	if o.Backend != "" {
		cfg.Scheduler.Backend = o.Backend
	}
	if o.Timezone != "" {
		cfg.Scheduler.Timezone = o.Timezone
	}
	if o.MetricsAddr != "" {
		cfg.Metrics.Addr = o.MetricsAddr
		cfg.Metrics.Enabled = true
	}
	return nil
}
