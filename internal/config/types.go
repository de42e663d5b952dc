package config

// Config is the daemon configuration. Durations are Go duration strings
// ("500ms", "1m") parsed with ParseDurationField.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Delivery  DeliveryConfig  `json:"delivery"`
	Metrics   MetricsConfig   `json:"metrics"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./alarmd.db", "busy_timeout": "2s" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// SchedulerConfig controls backend selection and alarm housekeeping.
//
// Defaults (when fields are omitted/zero):
//   - backend: "auto"
//   - legacy_capacity: 64
//   - near_cap_ratio: 0.9
//   - snooze_minutes: 9
//   - sweep_interval: "1m"
type SchedulerConfig struct {
	// Backend is "auto", "native" or "legacy".
	Backend string `json:"backend"`
	// Timezone overrides the device zone (IANA id). Empty means the host zone.
	Timezone       string  `json:"timezone,omitempty"`
	LegacyCapacity int     `json:"legacy_capacity,omitempty"`
	NearCapRatio   float64 `json:"near_cap_ratio,omitempty"`
	SnoozeMinutes  int     `json:"snooze_minutes,omitempty"`
	SweepInterval  string  `json:"sweep_interval,omitempty"`

	Native NativeConfig `json:"native"`
	Legacy LegacyConfig `json:"legacy"`
}

// NativeConfig simulates the host's native scheduling capability.
type NativeConfig struct {
	// Available is the capability probe answer used by backend "auto".
	Available bool `json:"available"`
	// Authorized is the answer to the native permission prompt.
	Authorized bool `json:"authorized"`
}

type LegacyConfig struct {
	Authorized bool `json:"authorized"`
}

// DeliveryConfig controls the fired-alarm pipeline.
type DeliveryConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers,omitempty"`
	QueueSize       int    `json:"queue_size,omitempty"`
	RatePerSec      int    `json:"rate_per_sec,omitempty"`
	RetryMax        int    `json:"retry_max,omitempty"`
	RetryBase       string `json:"retry_base,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	DedupWindow     string `json:"dedup_window,omitempty"`
	DedupMaxEntries int    `json:"dedup_max_entries,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default "127.0.0.1:9464"
}

const (
	DefaultLegacyCapacity = 64
	DefaultNearCapRatio   = 0.9
	DefaultSnoozeMinutes  = 9
	DefaultSweepInterval  = "1m"
	DefaultMetricsAddr    = "127.0.0.1:9464"
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Driver: "file", Path: "./alarmd.json"},
		Scheduler: SchedulerConfig{
			Backend: "auto",
			Native:  NativeConfig{Available: true, Authorized: true},
			Legacy:  LegacyConfig{Authorized: true},
		},
		Delivery: DeliveryConfig{Enabled: true, DedupWindow: "1m"},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Scheduler.Backend == "" {
		c.Scheduler.Backend = "auto"
	}
	if c.Scheduler.LegacyCapacity <= 0 {
		c.Scheduler.LegacyCapacity = DefaultLegacyCapacity
	}
	if c.Scheduler.NearCapRatio <= 0 {
		c.Scheduler.NearCapRatio = DefaultNearCapRatio
	}
	if c.Scheduler.SnoozeMinutes <= 0 {
		c.Scheduler.SnoozeMinutes = DefaultSnoozeMinutes
	}
	if c.Scheduler.SweepInterval == "" {
		c.Scheduler.SweepInterval = DefaultSweepInterval
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
}
