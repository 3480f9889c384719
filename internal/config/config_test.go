package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/yegors/planetracker/pkg/logger"
)

const sampleConfig = `
[server]
port = 9090
additional_ports = [9091]

[logging]
level = "debug"
format = "json"

[storage]
sqlite_path = "/tmp/pt.db"

[alerting]
radius_meters = 2000
recency_window_seconds = 60
poll_interval = "5m"
cycle_timeout = "10s"
invalid_location_forces_alert = false

[location]
latitude = 51.70
longitude = 0.10

[notify]
nats_url = "nats://localhost:4222"
rate_per_minute = 2
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestLoadOverridesDefaults(t *testing.T) {
	t.Setenv(EnvLatitude, "")
	path := writeConfig(t, t.TempDir(), sampleConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Alerting.RadiusMeters != 2000 {
		t.Errorf("file values not applied: %+v", cfg.Alerting)
	}
	if cfg.Alerting.PollInterval.Duration != 5*time.Minute || cfg.Alerting.RecencyWindow() != time.Minute {
		t.Errorf("durations = %s / %s", cfg.Alerting.PollInterval, cfg.Alerting.RecencyWindow())
	}
	if cfg.Alerting.InvalidLocationForcesAlert {
		t.Error("invalid_location_forces_alert not applied")
	}
	// Untouched sections keep their defaults.
	if cfg.Alerting.BucketMinutes != 10 || cfg.Flag.EditSuppression.Duration != 10*time.Second || cfg.Flag.AckGrace.Duration != 2*time.Second {
		t.Errorf("defaults lost: %+v %+v", cfg.Alerting, cfg.Flag)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero radius", func(c *Config) { c.Alerting.RadiusMeters = 0 }, "alerting.radius_meters"},
		{"negative window", func(c *Config) { c.Alerting.RecencyWindowSecs = -1 }, "alerting.recency_window_seconds"},
		{"zero poll interval", func(c *Config) { c.Alerting.PollInterval = Duration{} }, "alerting.poll_interval"},
		{"bucket not dividing hour", func(c *Config) { c.Alerting.BucketMinutes = 7 }, "alerting.bucket_minutes"},
		{"latitude range", func(c *Config) { c.Location.Latitude = 91 }, "location.latitude"},
		{"duplicate port", func(c *Config) { c.Server.AdditionalPorts = []int{c.Server.Port} }, "server.additional_ports"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"title format", func(c *Config) { c.Notify.TitleFormat = "Planes" }, "notify.title_format"},
		{"feeder without source", func(c *Config) {
			c.Feeder.Enabled = true
			c.Feeder.SBSAddress = ""
		}, "feeder"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("Validate() = %v, want ConfigError", err)
			}
			if cerr.Field != tt.field {
				t.Fatalf("field = %q, want %q", cerr.Field, tt.field)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvLatitude:  "48.85",
		EnvLongitude: "2.35",
		EnvNATSURL:   "nats://bus:4222",
		EnvPort:      "7000",
	}
	cfg := Default()
	if err := cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Location.Latitude != 48.85 || cfg.Location.Longitude != 2.35 {
		t.Errorf("location = %+v", cfg.Location)
	}
	if cfg.Notify.NATSURL != "nats://bus:4222" || cfg.Server.Port != 7000 {
		t.Errorf("env not applied: %s %d", cfg.Notify.NATSURL, cfg.Server.Port)
	}

	bad := Default()
	err := bad.ApplyEnv(func(k string) (string, bool) {
		if k == EnvLatitude {
			return "north", true
		}
		return "", false
	})
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("ApplyEnv err = %v, want ConfigError", err)
	}

	if err := Default().ApplyEnv(noEnv); err != nil {
		t.Fatalf("empty env: %v", err)
	}
}

func TestLoadWithFallback(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)

	cfg, used, err := LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback: %v", err)
	}
	if used != path || cfg.Server.Port != 9090 {
		t.Fatalf("loaded %s port %d", used, cfg.Server.Port)
	}

	if _, _, err := LoadWithFallback(filepath.Join(dir, "missing.toml")); err == nil {
		// configs/config.toml or config.toml in the test's working directory would
		// satisfy the fallback; the package directory has neither.
		t.Fatal("expected error for missing config")
	}
}

func TestWatcherReloadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	w := NewWatcher(path, cfg, logger.NewNop())
	var reloaded []*Config
	w.OnReload(func(c *Config) { reloaded = append(reloaded, c) })

	writeConfig(t, dir, sampleConfig+"\n[stats]\npoll_interval = \"1m\"\n")
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(reloaded) != 1 || w.Current().Stats.PollInterval.Duration != time.Minute {
		t.Fatalf("valid reload not applied")
	}

	writeConfig(t, dir, "[alerting]\nradius_meters = -5\n")
	err = w.Reload()
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("Reload err = %v, want ConfigError", err)
	}
	if len(reloaded) != 1 || w.Current().Alerting.RadiusMeters != 2000 {
		t.Fatal("invalid reload replaced the active config")
	}

	writeConfig(t, dir, "[alerting\n")
	if err := w.Reload(); err == nil {
		t.Fatal("malformed TOML accepted")
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("90s")); err != nil || d.Duration != 90*time.Second {
		t.Fatalf("UnmarshalText = %s, %v", d, err)
	}
	if err := d.UnmarshalText([]byte("soon")); err == nil {
		t.Fatal("bad duration accepted")
	}
	if b, _ := (Duration{time.Minute}).MarshalText(); string(b) != "1m0s" {
		t.Fatalf("MarshalText = %s", b)
	}
}
