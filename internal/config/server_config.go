package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the station server configuration
type AppConfig struct {
	Server   ServerSettings  `yaml:"server"`
	Storage  StorageSettings `yaml:"storage"`
	Schema   SchemaConfig    `yaml:"schema"`
	Timezone string          `yaml:"timezone"` // fixed-offset IANA name for log timestamps; empty = UTC
	Logging  LoggingConfig   `yaml:"logging"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	AuthToken      string        `yaml:"auth_token"` // bearer token for /sensor-stream
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// StorageSettings contains log file configuration
type StorageSettings struct {
	LogPath string `yaml:"log_path"`
	// MaxRows caps the max parameter of the query endpoint
	MaxRows int `yaml:"max_rows"`
}

// LoadAppConfig loads server configuration from a YAML file
func LoadAppConfig(path string) (*AppConfig, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var config AppConfig
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	config.ApplyDefaults()
	config.OverrideFromEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for server config
func (ac *AppConfig) ApplyDefaults() {
	if ac.Server.Port == 0 {
		ac.Server.Port = 8081
	}
	if ac.Server.Host == "" {
		ac.Server.Host = "localhost"
	}
	if ac.Server.ReadTimeout == 0 {
		ac.Server.ReadTimeout = 60 * time.Second
	}
	if ac.Server.WriteTimeout == 0 {
		ac.Server.WriteTimeout = 30 * time.Second
	}
	if ac.Storage.LogPath == "" {
		ac.Storage.LogPath = "./data/sensor_log.txt"
	}
	if ac.Storage.MaxRows == 0 {
		ac.Storage.MaxRows = 10000
	}
	ac.Logging.ApplyDefaults()
}

// OverrideFromEnv overrides config from environment variables
func (ac *AppConfig) OverrideFromEnv() {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			ac.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		ac.Server.Host = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		ac.Server.AuthToken = v
	}
	if v := os.Getenv("STORAGE_LOG_PATH"); v != "" {
		ac.Storage.LogPath = v
	}
	if v := os.Getenv("STATION_TIMEZONE"); v != "" {
		ac.Timezone = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		ac.Logging.Level = v
	}
}

// Validate checks if server configuration is valid
func (ac *AppConfig) Validate() error {
	if ac.Server.Port < 1 || ac.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if ac.Server.AuthToken == "" {
		return fmt.Errorf("auth token is required")
	}
	if ac.Storage.LogPath == "" {
		return fmt.Errorf("storage log path is required")
	}
	if ac.Storage.MaxRows < 1 {
		return fmt.Errorf("storage max rows must be at least 1")
	}
	if _, err := ac.Schema.Build(); err != nil {
		return err
	}
	if _, err := LoadLocation(ac.Timezone); err != nil {
		return err
	}
	return ac.Logging.Validate()
}

// String returns a safe string representation (hides auth token)
func (ac *AppConfig) String() string {
	server := ac.Server
	server.AuthToken = maskToken(server.AuthToken)
	return fmt.Sprintf("AppConfig{Server: %+v, Storage: %+v, Metrics: %d, Timezone: %q, Logging: %+v}",
		server,
		ac.Storage,
		len(ac.Schema.Metrics),
		ac.Timezone,
		ac.Logging,
	)
}

// Location returns the configured timezone
func (ac *AppConfig) Location() *time.Location {
	loc, err := LoadLocation(ac.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
