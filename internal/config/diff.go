package config

import (
	"strings"

	logx "alarmd/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and log fields
// describing the new values.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if storageChanged(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.String("storage.path", newCfg.Storage.Path),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.backend", newCfg.Scheduler.Backend),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.Int("scheduler.legacy_capacity", newCfg.Scheduler.LegacyCapacity),
			logx.Int("scheduler.snooze_minutes", newCfg.Scheduler.SnoozeMinutes),
		)
	}

	if oldCfg.Delivery != newCfg.Delivery {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Bool("delivery.enabled", newCfg.Delivery.Enabled),
			logx.Int("delivery.workers", newCfg.Delivery.Workers),
			logx.Int("delivery.rate_per_sec", newCfg.Delivery.RatePerSec),
		)
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.Metrics.Addr),
		)
	}

	return changed, attrs
}

func storageChanged(a, b StorageConfig) bool {
	return !strings.EqualFold(strings.TrimSpace(a.Driver), strings.TrimSpace(b.Driver)) ||
		strings.TrimSpace(a.Path) != strings.TrimSpace(b.Path) ||
		strings.TrimSpace(a.BusyTimeout) != strings.TrimSpace(b.BusyTimeout)
}

// RestartRequired lists changed sections that are only read at startup.
// Logging and delivery are applied live.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if storageChanged(oldCfg.Storage, newCfg.Storage) {
		out = append(out, "storage")
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		out = append(out, "scheduler")
	}
	if oldCfg.Metrics != newCfg.Metrics {
		out = append(out, "metrics")
	}
	return out
}
