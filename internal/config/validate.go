package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "memory", "mem":
	case "file", "json", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Scheduler.Backend)) {
	case "", "auto", "native", "legacy":
	default:
		errs = append(errs, fmt.Errorf("scheduler.backend: must be auto, native or legacy, got %q", c.Scheduler.Backend))
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if c.Scheduler.NearCapRatio > 1 {
		errs = append(errs, fmt.Errorf("scheduler.near_cap_ratio: must be <= 1, got %v", c.Scheduler.NearCapRatio))
	}
	if _, err := ParseDurationField("scheduler.sweep_interval", c.Scheduler.SweepInterval); err != nil {
		errs = append(errs, err)
	}

	for path, raw := range map[string]string{
		"delivery.retry_base":      c.Delivery.RetryBase,
		"delivery.retry_max_delay": c.Delivery.RetryMaxDelay,
		"delivery.dedup_window":    c.Delivery.DedupWindow,
	} {
		if _, err := ParseDurationField(path, raw); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
