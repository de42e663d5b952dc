package app

import (
	"fmt"
	"strings"
	"time"

	"alarmd/internal/config"
	"alarmd/internal/delivery"
	"alarmd/internal/orchestrator"
	"alarmd/internal/storage"
	logx "alarmd/pkg/logx"
)

// Config mappings from the file format to component configs.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: driver, Path: strings.TrimSpace(sc.Path), BusyTimeout: busy}, nil
}

func mapDeliveryConfig(cfg *config.Config) (delivery.Config, error) {
	dc := cfg.Delivery
	retryBase, err := config.ParseDurationField("delivery.retry_base", dc.RetryBase)
	if err != nil {
		return delivery.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("delivery.retry_max_delay", dc.RetryMaxDelay)
	if err != nil {
		return delivery.Config{}, err
	}
	dedup, err := config.ParseDurationField("delivery.dedup_window", dc.DedupWindow)
	if err != nil {
		return delivery.Config{}, err
	}
	if dc.Workers < 0 || dc.QueueSize < 0 || dc.RatePerSec < 0 || dc.RetryMax < 0 {
		return delivery.Config{}, fmt.Errorf("delivery: workers, queue_size, rate_per_sec and retry_max must be >= 0")
	}
	return delivery.Config{
		Enabled:         dc.Enabled,
		Workers:         dc.Workers,
		QueueSize:       dc.QueueSize,
		RatePerSec:      dc.RatePerSec,
		RetryMax:        dc.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedup,
		DedupMaxEntries: dc.DedupMaxEntries,
		HistorySize:     dc.HistorySize,
	}, nil
}

func mapOrchestratorConfig(cfg *config.Config, device *time.Location) (orchestrator.Config, error) {
	sweep, err := config.ParseDurationOrDefault("scheduler.sweep_interval", cfg.Scheduler.SweepInterval, time.Minute)
	if err != nil {
		return orchestrator.Config{}, err
	}
	return orchestrator.Config{
		Device:        device,
		NearCapRatio:  cfg.Scheduler.NearCapRatio,
		SnoozeMinutes: cfg.Scheduler.SnoozeMinutes,
		SweepInterval: sweep,
	}, nil
}

// deviceLocation resolves scheduler.timezone, defaulting to the host zone.
func deviceLocation(cfg *config.Config) (*time.Location, error) {
	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

// validateReload rejects configs whose live-applied sections cannot be mapped.
func validateReload(cfg *config.Config) error {
	if _, err := mapDeliveryConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := deviceLocation(cfg); err != nil {
		return err
	}
	_, err := mapOrchestratorConfig(cfg, time.UTC)
	return err
}
