package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// UplinkConfig holds all configuration for the station uplink
type UplinkConfig struct {
	Station StationConfig `yaml:"station"`
	Server  ServerConfig  `yaml:"server"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Logging LoggingConfig `yaml:"logging"`
}

// StationConfig contains station-specific settings
type StationConfig struct {
	ID           string        `yaml:"id"`
	Location     string        `yaml:"location"`
	Unit         string        `yaml:"unit"` // sampling unit; "simulator" is built in
	ReadInterval time.Duration `yaml:"read_interval"`
}

// ServerConfig contains connection settings for the station server
type ServerConfig struct {
	URL                  string        `yaml:"url"` // e.g. wss://example.com/sensor-stream
	AuthToken            string        `yaml:"auth_token"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectInterval time.Duration `yaml:"max_reconnect_interval"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PongTimeout          time.Duration `yaml:"pong_timeout"`
}

// BufferConfig contains settings for the sample buffer
type BufferConfig struct {
	Size       int  `yaml:"size"`        // max samples held while disconnected
	DropOldest bool `yaml:"drop_oldest"` // drop oldest when full (vs newest)
	BatchSize  int  `yaml:"batch_size"`  // samples per batch message when flushing
}

// LoadUplinkConfig loads uplink configuration from a YAML file
func LoadUplinkConfig(path string) (*UplinkConfig, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var config UplinkConfig
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

// ApplyDefaults sets default values for any unset fields
func (c *UplinkConfig) ApplyDefaults() {
	if c.Station.Unit == "" {
		c.Station.Unit = "simulator"
	}
	if c.Station.ReadInterval == 0 {
		c.Station.ReadInterval = 15 * time.Second
	}
	if c.Server.ConnectTimeout == 0 {
		c.Server.ConnectTimeout = 10 * time.Second
	}
	if c.Server.ReconnectInterval == 0 {
		c.Server.ReconnectInterval = 1 * time.Second
	}
	if c.Server.MaxReconnectInterval == 0 {
		c.Server.MaxReconnectInterval = 5 * time.Minute
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = 30 * time.Second
	}
	if c.Server.PongTimeout == 0 {
		c.Server.PongTimeout = 10 * time.Second
	}
	if c.Buffer.Size == 0 {
		c.Buffer.Size = 1000
		c.Buffer.DropOldest = true
	}
	if c.Buffer.BatchSize == 0 {
		c.Buffer.BatchSize = 50
	}
	c.Logging.ApplyDefaults()
}

// OverrideFromEnv overrides config values from environment variables
func (c *UplinkConfig) OverrideFromEnv() {
	if v := os.Getenv("STATION_ID"); v != "" {
		c.Station.ID = v
	}
	if v := os.Getenv("STATION_LOCATION"); v != "" {
		c.Station.Location = v
	}
	if v := os.Getenv("SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid
func (c *UplinkConfig) Validate() error {
	if c.Station.ID == "" {
		return fmt.Errorf("station ID is required")
	}
	if c.Station.Unit != "simulator" {
		return fmt.Errorf("unknown sampling unit %q", c.Station.Unit)
	}
	if c.Server.URL == "" {
		return fmt.Errorf("server URL is required")
	}
	if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		return fmt.Errorf("server URL must start with ws:// or wss://")
	}
	if c.Server.AuthToken == "" {
		return fmt.Errorf("server auth token is required")
	}
	if c.Station.ReadInterval < 1*time.Second {
		return fmt.Errorf("read interval must be at least 1 second")
	}
	if c.Buffer.Size < 10 || c.Buffer.Size > 100000 {
		return fmt.Errorf("buffer size must be between 10 and 100000")
	}
	if c.Buffer.BatchSize < 1 || c.Buffer.BatchSize > c.Buffer.Size {
		return fmt.Errorf("batch size must be between 1 and the buffer size")
	}
	return nil
}

// String returns a safe string representation (hides auth token)
func (c *UplinkConfig) String() string {
	return fmt.Sprintf("UplinkConfig{Station: %+v, Server: [URL=%s, Token=%s...], Buffer: %+v, Logging: %+v}",
		c.Station,
		c.Server.URL,
		maskToken(c.Server.AuthToken),
		c.Buffer,
		c.Logging,
	)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
