package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"
)

// ConfigError reports an invalid configuration value
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return invalid("server.port", "%d", c.Server.Port)
	}
	portsSeen := map[int]bool{c.Server.Port: true}
	for _, p := range c.Server.AdditionalPorts {
		if p <= 0 || p > 65535 {
			return invalid("server.additional_ports", "%d", p)
		}
		if portsSeen[p] {
			return invalid("server.additional_ports", "duplicate port %d (primary or additional)", p)
		}
		portsSeen[p] = true
	}
	if c.Server.StaticFilesDir != "" {
		if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
			return invalid("server.static_files_dir", "directory does not exist: %s", c.Server.StaticFilesDir)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level", "%q (want debug, info, warn or error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return invalid("logging.format", "%q (want json or console)", c.Logging.Format)
	}

	if c.Storage.Type != "sqlite" {
		return invalid("storage.type", "%q (only sqlite is supported)", c.Storage.Type)
	}
	if c.Storage.SQLitePath == "" {
		return invalid("storage.sqlite_path", "must not be empty")
	}
	if c.Storage.RetentionDays < 0 {
		return invalid("storage.retention_days", "%d (must be >= 0)", c.Storage.RetentionDays)
	}

	if err := c.ValidateAlerting(); err != nil {
		return err
	}

	if err := positive("stats.poll_interval", c.Stats.PollInterval.Duration); err != nil {
		return err
	}

	if err := positive("flag.sync_interval", c.Flag.SyncInterval.Duration); err != nil {
		return err
	}
	if err := positive("flag.edit_suppression", c.Flag.EditSuppression.Duration); err != nil {
		return err
	}
	if c.Flag.AckGrace.Duration < 0 {
		return invalid("flag.ack_grace", "%s (must be >= 0)", c.Flag.AckGrace)
	}

	if err := c.ValidateLocation(); err != nil {
		return err
	}

	if c.Notify.RatePerMinute < 0 {
		return invalid("notify.rate_per_minute", "%d (must be >= 0)", c.Notify.RatePerMinute)
	}
	if c.Notify.TitleFormat != "" && strings.Count(c.Notify.TitleFormat, "%d") != 1 {
		return invalid("notify.title_format", "%q (must contain exactly one %%d)", c.Notify.TitleFormat)
	}

	if c.Feeder.Enabled {
		if c.Feeder.SBSAddress == "" && c.Feeder.AircraftJSON == "" {
			return invalid("feeder", "enabled without sbs_address or aircraft_json")
		}
		if err := positive("feeder.reconnect_delay", c.Feeder.ReconnectDelay.Duration); err != nil {
			return err
		}
		if c.Feeder.SBSAddress == "" {
			if err := positive("feeder.json_interval", c.Feeder.JSONInterval.Duration); err != nil {
				return err
			}
		}
	}

	return nil
}

// ValidateAlerting validates the alert cycle settings. It is also used for hot
// reloads, which only touch these values.
func (c *Config) ValidateAlerting() error {
	a := c.Alerting
	if math.IsNaN(a.RadiusMeters) || a.RadiusMeters <= 0 {
		return invalid("alerting.radius_meters", "%v (must be > 0)", a.RadiusMeters)
	}
	if a.RecencyWindowSecs <= 0 {
		return invalid("alerting.recency_window_seconds", "%d (must be > 0)", a.RecencyWindowSecs)
	}
	if err := positive("alerting.poll_interval", a.PollInterval.Duration); err != nil {
		return err
	}
	if a.BucketMinutes <= 0 || a.BucketMinutes > 60 || 60%a.BucketMinutes != 0 {
		return invalid("alerting.bucket_minutes", "%d (must divide 60)", a.BucketMinutes)
	}
	if err := positive("alerting.cycle_timeout", a.CycleTimeout.Duration); err != nil {
		return err
	}
	return nil
}

// ValidateLocation validates the configured user position. (0,0) is accepted and
// means the position is unavailable.
func (c *Config) ValidateLocation() error {
	if math.IsNaN(c.Location.Latitude) || c.Location.Latitude < -90 || c.Location.Latitude > 90 {
		return invalid("location.latitude", "%f", c.Location.Latitude)
	}
	if math.IsNaN(c.Location.Longitude) || c.Location.Longitude < -180 || c.Location.Longitude > 180 {
		return invalid("location.longitude", "%f", c.Location.Longitude)
	}
	if c.Location.MaxAge.Duration < 0 {
		return invalid("location.max_age", "%s (must be >= 0)", c.Location.MaxAge)
	}
	return nil
}

func positive(field string, d time.Duration) error {
	if d <= 0 {
		return invalid(field, "%s (must be > 0)", d)
	}
	return nil
}
