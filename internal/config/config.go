package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server   ServerConfig   `toml:"server"`   // HTTP server settings
	Logging  LoggingConfig  `toml:"logging"`  // Application logging settings
	OpenSky  OpenSkyConfig  `toml:"opensky"`  // OpenSky API client settings
	Pipeline PipelineConfig `toml:"pipeline"` // Collection and transform pipeline settings
	Storage  StorageConfig  `toml:"storage"`  // Data persistence settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // Primary HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	AdditionalPorts    []int    `toml:"additional_ports"`      // Additional HTTP ports to listen on
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// OpenSkyConfig contains OpenSky Network API client configuration.
// The client id and secret can be supplied here or via the
// OPENSKY_CLIENT_ID / OPENSKY_CLIENT_SECRET environment variables
// (a .env file is honoured if present); environment values win.
type OpenSkyConfig struct {
	ClientID           string `toml:"client_id"`               // OAuth2 client id for the client-credentials grant
	ClientSecret       string `toml:"client_secret"`           // OAuth2 client secret
	TokenURL           string `toml:"token_url"`               // OAuth2 token endpoint (defaults to the OpenSky identity provider)
	APIBaseURL         string `toml:"api_base_url"`            // REST API base URL (defaults to https://opensky-network.org/api)
	RequestTimeoutSecs int    `toml:"request_timeout_seconds"` // HTTP timeout for outbound API calls (0 = default 30s)
}

// RegionConfig defines a named geographic bounding box used to scope
// state vector queries
type RegionConfig struct {
	LatMin float64 `toml:"lamin"` // Minimum latitude
	LatMax float64 `toml:"lamax"` // Maximum latitude
	LonMin float64 `toml:"lomin"` // Minimum longitude
	LonMax float64 `toml:"lomax"` // Maximum longitude
}

// PipelineConfig contains collection pipeline settings
type PipelineConfig struct {
	FetchIntervalSecs int                     `toml:"fetch_interval_seconds"` // How often to refresh state vectors per region (in seconds)
	Regions           map[string]RegionConfig `toml:"regions"`                // Named bounding boxes to poll (e.g., north_america, europe, asia)
	MajorAirports     []string                `toml:"major_airports"`         // ICAO codes of airports available for arrival/departure queries
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	Type           string `toml:"type"`             // Storage backend type (currently only "sqlite" is supported)
	SQLiteBasePath string `toml:"sqlite_base_path"` // Base path for SQLite database files (actual filename is generated as flightdeck-YYYY-MM-DD.db)
}

const (
	defaultTokenURL   = "https://auth.opensky-network.org/auth/realms/opensky-network/protocol/openid-connect/token"
	defaultAPIBaseURL = "https://opensky-network.org/api"
)

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyEnvOverrides()

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
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
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// applyEnvOverrides layers environment-supplied credentials over the file
// values. A .env file in the working directory is loaded first if present;
// a missing .env is not an error.
func (c *Config) applyEnvOverrides() {
	_ = godotenv.Load()

	if v := os.Getenv("OPENSKY_CLIENT_ID"); v != "" {
		c.OpenSky.ClientID = v
	}
	if v := os.Getenv("OPENSKY_CLIENT_SECRET"); v != "" {
		c.OpenSky.ClientSecret = v
	}
}

// RegionNames returns the configured region names in sorted order
func (c *Config) RegionNames() []string {
	names := make([]string, 0, len(c.Pipeline.Regions))
	for name := range c.Pipeline.Regions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	portsSeen := make(map[int]bool)
	portsSeen[c.Server.Port] = true
	for _, p := range c.Server.AdditionalPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid additional server port: %d", p)
		}
		if portsSeen[p] {
			return fmt.Errorf("duplicate port configured: %d (primary or additional)", p)
		}
		portsSeen[p] = true
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Validate OpenSky config
	if c.OpenSky.ClientID == "" {
		return fmt.Errorf("opensky client_id is required (config file or OPENSKY_CLIENT_ID)")
	}
	if c.OpenSky.ClientSecret == "" {
		return fmt.Errorf("opensky client_secret is required (config file or OPENSKY_CLIENT_SECRET)")
	}
	if c.OpenSky.TokenURL == "" {
		c.OpenSky.TokenURL = defaultTokenURL
	}
	if c.OpenSky.APIBaseURL == "" {
		c.OpenSky.APIBaseURL = defaultAPIBaseURL
	}
	if c.OpenSky.RequestTimeoutSecs <= 0 {
		c.OpenSky.RequestTimeoutSecs = 30
	}

	// Validate pipeline config
	if c.Pipeline.FetchIntervalSecs <= 0 {
		c.Pipeline.FetchIntervalSecs = 60
	}
	if len(c.Pipeline.Regions) == 0 {
		return fmt.Errorf("at least one pipeline region is required")
	}
	for name, region := range c.Pipeline.Regions {
		if region.LatMin >= region.LatMax {
			return fmt.Errorf("region %s: lamin must be less than lamax", name)
		}
		if region.LonMin >= region.LonMax {
			return fmt.Errorf("region %s: lomin must be less than lomax", name)
		}
		if region.LatMin < -90 || region.LatMax > 90 {
			return fmt.Errorf("region %s: latitude out of range", name)
		}
		if region.LonMin < -180 || region.LonMax > 180 {
			return fmt.Errorf("region %s: longitude out of range", name)
		}
	}

	// Validate storage config
	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Storage.Type != "sqlite" {
		return fmt.Errorf("invalid storage type: %s (only 'sqlite' is supported)", c.Storage.Type)
	}
	if c.Storage.SQLiteBasePath == "" {
		return fmt.Errorf("sqlite_base_path is required when storage type is sqlite")
	}

	return nil
}
