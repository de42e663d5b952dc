package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseBytes_YAMLAppliesDefaults(t *testing.T) {
	src := []byte(`
logging:
  level: debug
  console: true
storage:
  driver: sqlite
  path: ./alarms.db
scheduler:
  backend: legacy
  timezone: Asia/Kolkata
  native:
    available: false
delivery:
  enabled: true
  workers: 2
`)
	cfg, err := ParseBytes("alarmd.yaml", src)
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("unexpected decode: %+v", cfg)
	}
	if cfg.Scheduler.LegacyCapacity != DefaultLegacyCapacity {
		t.Fatalf("legacy capacity default = %d", cfg.Scheduler.LegacyCapacity)
	}
	if cfg.Scheduler.SnoozeMinutes != DefaultSnoozeMinutes {
		t.Fatalf("snooze default = %d", cfg.Scheduler.SnoozeMinutes)
	}
	if cfg.Scheduler.NearCapRatio != DefaultNearCapRatio {
		t.Fatalf("near cap default = %v", cfg.Scheduler.NearCapRatio)
	}
	if cfg.Metrics.Addr != DefaultMetricsAddr {
		t.Fatalf("metrics addr default = %q", cfg.Metrics.Addr)
	}
}

func TestParseBytes_RejectsUnknownField(t *testing.T) {
	_, err := ParseBytes("alarmd.json", []byte(`{"storage":{"driver":"memory"},"telegram":{}}`))
	if err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestParseBytes_RejectsTrailingData(t *testing.T) {
	_, err := ParseBytes("alarmd.json", []byte(`{} {}`))
	if !errors.Is(err, ErrTrailingData) {
		t.Fatalf("err = %v, want ErrTrailingData", err)
	}
}

func TestParseBytes_Validation(t *testing.T) {
	cases := map[string]string{
		"backend":  `{"scheduler":{"backend":"alarmkit"}}`,
		"timezone": `{"scheduler":{"timezone":"Mars/Olympus"}}`,
		"driver":   `{"storage":{"driver":"postgres"}}`,
		"path":     `{"storage":{"driver":"file"}}`,
		"duration": `{"delivery":{"dedup_window":"soon"}}`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseBytes("alarmd.json", []byte(src)); err == nil {
				t.Fatalf("expected validation error for %s", src)
			}
		})
	}
}

func TestParseBytes_EnvOverrides(t *testing.T) {
	t.Setenv("ALARMD_BACKEND", "native")
	t.Setenv("ALARMD_TIMEZONE", "Asia/Tokyo")
	t.Setenv("ALARMD_STORAGE_DRIVER", "memory")
	t.Setenv("ALARMD_METRICS_ADDR", "127.0.0.1:9999")

	cfg, err := ParseBytes("alarmd.json", []byte(`{"scheduler":{"backend":"legacy"},"storage":{"driver":"file","path":"x.json"}}`))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if cfg.Scheduler.Backend != "native" || cfg.Scheduler.Timezone != "Asia/Tokyo" {
		t.Fatalf("scheduler overrides not applied: %+v", cfg.Scheduler)
	}
	if cfg.Storage.Driver != "memory" {
		t.Fatalf("storage override not applied: %+v", cfg.Storage)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "127.0.0.1:9999" {
		t.Fatalf("metrics override not applied: %+v", cfg.Metrics)
	}
}

func TestManager_MissingFileUsesDefault(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "none.yaml"))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.Backend != "auto" || m.Get() != cfg {
		t.Fatalf("unexpected default: %+v", cfg.Scheduler)
	}
}

func TestManager_LoadAndPublish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarmd.json")
	if err := os.WriteFile(path, []byte(`{"storage":{"driver":"memory"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{}
	second := &Config{Logging: LoggingConfig{Level: "warn"}}
	m.publish(first)
	m.publish(second)

	got := <-ch
	if got != second {
		t.Fatalf("slow subscriber should keep newest config")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	a := Default()
	b := Default()
	b.Logging.Level = "debug"
	b.Scheduler.Backend = "legacy"

	changed, attrs := SummarizeConfigChange(a, b)
	if !reflect.DeepEqual(changed, []string{"logging", "scheduler"}) {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}
	if got := RestartRequired(a, b); !reflect.DeepEqual(got, []string{"scheduler"}) {
		t.Fatalf("RestartRequired = %v", got)
	}

	changed, _ = SummarizeConfigChange(a, Default())
	if len(changed) != 0 {
		t.Fatalf("identical configs reported changes: %v", changed)
	}
}
