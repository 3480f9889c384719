package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server   ServerConfig   `toml:"server"`   // HTTP server settings
	Logging  LoggingConfig  `toml:"logging"`  // Application logging settings
	Storage  StorageConfig  `toml:"storage"`  // Record store settings
	Alerting AlertingConfig `toml:"alerting"` // Proximity alert cycle settings
	Stats    StatsConfig    `toml:"stats"`    // Dashboard statistics cycle settings
	Flag     FlagConfig     `toml:"flag"`     // Enabled flag synchronization settings
	Location LocationConfig `toml:"location"` // User position settings
	Notify   NotifyConfig   `toml:"notify"`   // Notification sink settings
	Feeder   FeederConfig   `toml:"feeder"`   // Observation producer settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // Primary HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, recommended for streaming)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	AdditionalPorts    []int    `toml:"additional_ports"`      // Additional HTTP ports to listen on (useful for multiple interfaces)
	StaticFilesDir     string   `toml:"static_files_dir"`      // Directory to serve a dashboard from (empty = disabled)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains record store configuration
type StorageConfig struct {
	Type          string `toml:"type"`           // Storage backend type (currently only "sqlite" is supported)
	SQLitePath    string `toml:"sqlite_path"`    // Path of the SQLite database file
	RetentionDays int    `toml:"retention_days"` // Days of observations to keep (0 = keep everything)
}

// AlertingConfig contains proximity alert settings
type AlertingConfig struct {
	RadiusMeters               float64  `toml:"radius_meters"`                  // Match radius around the user in meters
	RecencyWindowSecs          int      `toml:"recency_window_seconds"`         // Maximum observation age in seconds
	PollInterval               Duration `toml:"poll_interval"`                  // Alert cycle period (e.g., "10m")
	BucketMinutes              int      `toml:"bucket_minutes"`                 // Partition bucket size in minutes
	CycleTimeout               Duration `toml:"cycle_timeout"`                  // Upper bound for one cycle's fetches
	InvalidLocationForcesAlert bool     `toml:"invalid_location_forces_alert"` // Deliver "invalid coordinates" even with no matches
}

// RecencyWindow returns the recency window as a duration
func (a AlertingConfig) RecencyWindow() time.Duration {
	return time.Duration(a.RecencyWindowSecs) * time.Second
}

// StatsConfig contains dashboard statistics settings
type StatsConfig struct {
	PollInterval Duration `toml:"poll_interval"` // Stats cycle period (e.g., "15m")
}

// FlagConfig contains enabled flag synchronization settings
type FlagConfig struct {
	SyncInterval    Duration `toml:"sync_interval"`    // How often the flag is read from the store
	EditSuppression Duration `toml:"edit_suppression"` // How long store values are ignored after a local edit
	AckGrace        Duration `toml:"ack_grace"`        // Suppression kept after a confirmed write
}

// LocationConfig contains user position settings
type LocationConfig struct {
	Latitude      float64  `toml:"latitude"`       // Configured latitude (0,0 = unavailable)
	Longitude     float64  `toml:"longitude"`      // Configured longitude
	AllowOverride bool     `toml:"allow_override"` // Allow the position to be set over HTTP
	MaxAge        Duration `toml:"max_age"`        // Overrides older than this are ignored (0 = never expire)
}

// NotifyConfig contains notification sink settings
type NotifyConfig struct {
	WebSocket         bool     `toml:"websocket"`           // Broadcast alerts to websocket clients
	Log               bool     `toml:"log"`                 // Write alerts to the application log
	NATSURL           string   `toml:"nats_url"`            // NATS server URL (empty = disabled)
	NATSSubject       string   `toml:"nats_subject"`        // Subject alerts are published on
	NATSMaxReconnects int      `toml:"nats_max_reconnects"` // Reconnect attempts before giving up
	NATSReconnectWait Duration `toml:"nats_reconnect_wait"` // Wait between reconnect attempts
	RatePerMinute     int      `toml:"rate_per_minute"`     // Delivery limit across all sinks (0 = unlimited)
	TitleFormat       string   `toml:"title_format"`        // printf format for the title, taking the count
}

// FeederConfig contains observation producer settings
type FeederConfig struct {
	Enabled        bool     `toml:"enabled"`          // Run the built-in feeder
	SBSAddress     string   `toml:"sbs_address"`      // host:port of an SBS-1 BaseStation stream (e.g., dump1090 port 30003)
	AircraftJSON   string   `toml:"aircraft_json"`    // URL of a dump1090/tar1090 aircraft.json, used when sbs_address is empty
	JSONInterval   Duration `toml:"json_interval"`    // Poll period for aircraft_json
	AircraftDBPath string   `toml:"aircraft_db_path"` // Path to the ';' separated aircraft metadata file
	ReconnectDelay Duration `toml:"reconnect_delay"`  // Delay before reconnecting to the SBS stream
}

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			Host:               "0.0.0.0",
			CORSAllowedOrigins: []string{"*"},
			ReadTimeoutSecs:    15,
			IdleTimeoutSecs:    60,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Type:          "sqlite",
			SQLitePath:    "data/planetracker.db",
			RetentionDays: 30,
		},
		Alerting: AlertingConfig{
			RadiusMeters:               8000,
			RecencyWindowSecs:          120,
			PollInterval:               Duration{10 * time.Minute},
			BucketMinutes:              10,
			CycleTimeout:               Duration{15 * time.Second},
			InvalidLocationForcesAlert: true,
		},
		Stats: StatsConfig{
			PollInterval: Duration{15 * time.Minute},
		},
		Flag: FlagConfig{
			SyncInterval:    Duration{5 * time.Second},
			EditSuppression: Duration{10 * time.Second},
			AckGrace:        Duration{2 * time.Second},
		},
		Location: LocationConfig{
			AllowOverride: true,
		},
		Notify: NotifyConfig{
			WebSocket:         true,
			Log:               true,
			NATSSubject:       "planetracker.alerts",
			NATSMaxReconnects: 10,
			NATSReconnectWait: Duration{2 * time.Second},
			RatePerMinute:     6,
			TitleFormat:       "%d Planes Found",
		},
		Feeder: FeederConfig{
			SBSAddress:     "localhost:30003",
			JSONInterval:   Duration{5 * time.Second},
			ReconnectDelay: Duration{5 * time.Second},
		},
	}
}

// Load loads the configuration from the specified file path on top of the defaults
func Load(path string) (*Config, error) {
	config := Default()

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, string, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // Legacy location in configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			// File exists, try to load it
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, path, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, "", fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Environment variables that override file values
const (
	EnvLatitude   = "PLANETRACKER_LAT"
	EnvLongitude  = "PLANETRACKER_LON"
	EnvNATSURL    = "PLANETRACKER_NATS_URL"
	EnvDBPath     = "PLANETRACKER_DB_PATH"
	EnvLogLevel   = "PLANETRACKER_LOG_LEVEL"
	EnvPort       = "PLANETRACKER_PORT"
	EnvSBSAddress = "PLANETRACKER_SBS_ADDRESS"
)

// ApplyEnv overrides file values from the environment
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	float := func(name string, dst *float64) error {
		v, ok := lookup(name)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return &ConfigError{Field: name, Reason: fmt.Sprintf("not a number: %q", v)}
		}
		*dst = f
		return nil
	}
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if err := float(EnvLatitude, &c.Location.Latitude); err != nil {
		return err
	}
	if err := float(EnvLongitude, &c.Location.Longitude); err != nil {
		return err
	}
	str(EnvNATSURL, &c.Notify.NATSURL)
	str(EnvDBPath, &c.Storage.SQLitePath)
	str(EnvLogLevel, &c.Logging.Level)
	str(EnvSBSAddress, &c.Feeder.SBSAddress)

	if v, ok := lookup(EnvPort); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &ConfigError{Field: EnvPort, Reason: fmt.Sprintf("not a port: %q", v)}
		}
		c.Server.Port = port
	}
	return nil
}
