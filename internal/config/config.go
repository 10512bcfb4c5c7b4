package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server  ServerConfig  `toml:"server"`  // HTTP server settings
	OpenSky OpenSkyConfig `toml:"opensky"` // Upstream OpenSky Network settings
	Flights FlightsConfig `toml:"flights"` // Backend roster fetching settings
	Tracker TrackerConfig `toml:"tracker"` // Terminal client settings
	Storage StorageConfig `toml:"storage"` // Poll log persistence settings
	Logging LoggingConfig `toml:"logging"` // Application logging settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // Origins allowed for CORS requests
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Keep-alive idle timeout
	StaticFilesDir     string   `toml:"static_files_dir"`      // Directory to serve static files from (empty disables)
}

// OpenSkyConfig contains the upstream API settings.
// Credentials fall back to OPENSKY_CLIENT_ID / OPENSKY_CLIENT_SECRET when empty.
type OpenSkyConfig struct {
	BaseURL           string  `toml:"base_url"`            // REST API base, e.g. https://opensky-network.org/api
	TokenURL          string  `toml:"token_url"`           // OAuth2 token endpoint
	ClientID          string  `toml:"client_id"`           // OAuth2 client id
	ClientSecret      string  `toml:"client_secret"`       // OAuth2 client secret
	TimeoutSecs       int     `toml:"timeout_seconds"`     // Per-request timeout
	RequestsPerMinute float64 `toml:"requests_per_minute"` // Upstream request budget (0 = unlimited)
	DetailLookbackHrs int     `toml:"detail_lookback_hours"`
}

// FlightsConfig contains backend roster settings
type FlightsConfig struct {
	FetchIntervalSecs int `toml:"fetch_interval_seconds"` // How often the backend refreshes from upstream
	MaxFlights        int `toml:"max_flights"`            // Number of state vectors exposed per roster
	StatusHistory     int `toml:"status_history"`         // Poll log rows returned by /api/status
}

// TrackerConfig contains terminal client settings
type TrackerConfig struct {
	BackendURL  string `toml:"backend_url"`     // Base URL of the flights backend
	TimeoutSecs int    `toml:"timeout_seconds"` // Per-request timeout
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"` // Poll log database file (empty disables the poll log)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`        // Log level: "debug", "info", "warn", or "error"
	Format     string `toml:"format"`       // Log format: "json" or "console"
	File       string `toml:"file"`         // Optional rotated log file
	MaxSizeMB  int    `toml:"max_size_mb"`  // Rotation size
	MaxBackups int    `toml:"max_backups"`  // Rotated files to keep
	MaxAgeDays int    `toml:"max_age_days"` // Days to keep rotated files
	Compress   bool   `toml:"compress"`     // Gzip rotated files
}

// Default returns a configuration populated with defaults only
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference.
// When no file exists anywhere, defaults are returned.
func LoadWithFallback(preferredPath string) (*Config, error) {
	if preferredPath != "" {
		return Load(preferredPath)
	}

	for _, path := range []string{"configs/config.toml", "config.toml"} {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
			}
			return config, nil
		}
	}

	return Default(), nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if len(c.Server.CORSAllowedOrigins) == 0 {
		c.Server.CORSAllowedOrigins = []string{"http://localhost:5173"}
	}
	if c.Server.ReadTimeoutSecs == 0 {
		c.Server.ReadTimeoutSecs = 15
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = 60
	}

	if c.OpenSky.BaseURL == "" {
		c.OpenSky.BaseURL = "https://opensky-network.org/api"
	}
	if c.OpenSky.TokenURL == "" {
		c.OpenSky.TokenURL = "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"
	}
	if c.OpenSky.ClientID == "" {
		c.OpenSky.ClientID = os.Getenv("OPENSKY_CLIENT_ID")
	}
	if c.OpenSky.ClientSecret == "" {
		c.OpenSky.ClientSecret = os.Getenv("OPENSKY_CLIENT_SECRET")
	}
	if c.OpenSky.TimeoutSecs == 0 {
		c.OpenSky.TimeoutSecs = 10
	}
	if c.OpenSky.DetailLookbackHrs == 0 {
		c.OpenSky.DetailLookbackHrs = 24
	}

	if c.Flights.FetchIntervalSecs == 0 {
		c.Flights.FetchIntervalSecs = 30
	}
	if c.Flights.MaxFlights == 0 {
		c.Flights.MaxFlights = 50
	}
	if c.Flights.StatusHistory == 0 {
		c.Flights.StatusHistory = 20
	}

	if c.Tracker.BackendURL == "" {
		c.Tracker.BackendURL = "http://localhost:8000"
	}
	if c.Tracker.TimeoutSecs == 0 {
		c.Tracker.TimeoutSecs = 10
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 32
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 || c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}

	if _, err := url.ParseRequestURI(c.OpenSky.BaseURL); err != nil {
		return fmt.Errorf("invalid opensky.base_url: %w", err)
	}
	if _, err := url.ParseRequestURI(c.OpenSky.TokenURL); err != nil {
		return fmt.Errorf("invalid opensky.token_url: %w", err)
	}
	if (c.OpenSky.ClientID == "") != (c.OpenSky.ClientSecret == "") {
		return fmt.Errorf("opensky.client_id and opensky.client_secret must be set together")
	}
	if c.OpenSky.RequestsPerMinute < 0 {
		return fmt.Errorf("opensky.requests_per_minute must not be negative")
	}

	if c.Flights.FetchIntervalSecs < 1 {
		return fmt.Errorf("flights.fetch_interval_seconds must be at least 1")
	}
	if c.Flights.MaxFlights < 1 {
		return fmt.Errorf("flights.max_flights must be at least 1")
	}
	if c.Flights.StatusHistory < 0 {
		return fmt.Errorf("flights.status_history must not be negative")
	}

	u, err := url.Parse(c.Tracker.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid tracker.backend_url: %q", c.Tracker.BackendURL)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}

	return nil
}
