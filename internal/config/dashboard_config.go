package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/afroash/station-monitor/internal/aggregate"
)

// DashboardConfig holds the terminal dashboard configuration
type DashboardConfig struct {
	Server    DashboardServer  `yaml:"server"`
	Refresh   RefreshSettings  `yaml:"refresh"`
	Aggregate aggregate.Config `yaml:"aggregate"`
	Display   DisplaySettings  `yaml:"display"`
	Timezone  string           `yaml:"timezone"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// DashboardServer locates the station server
type DashboardServer struct {
	URL string `yaml:"url"` // e.g. http://station.local:8081
}

// RefreshSettings controls the refresh cadence
type RefreshSettings struct {
	Interval     time.Duration `yaml:"interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// DisplaySettings controls the terminal output
type DisplaySettings struct {
	Width int  `yaml:"width"`
	Clear bool `yaml:"clear"`
}

// LoadDashboardConfig loads dashboard configuration from a YAML file
func LoadDashboardConfig(path string) (*DashboardConfig, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var config DashboardConfig
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

// ApplyDefaults sets default values for dashboard config
func (dc *DashboardConfig) ApplyDefaults() {
	if dc.Server.URL == "" {
		dc.Server.URL = "http://localhost:8081"
	}
	if dc.Refresh.Interval == 0 {
		dc.Refresh.Interval = 10 * time.Second
	}
	if dc.Refresh.FetchTimeout == 0 {
		dc.Refresh.FetchTimeout = 8 * time.Second
	}
	if dc.Display.Width == 0 {
		dc.Display.Width = 100
	}
	dc.Aggregate.ApplyDefaults()
	dc.Logging.ApplyDefaults()
}

// OverrideFromEnv overrides config from environment variables
func (dc *DashboardConfig) OverrideFromEnv() {
	if v := os.Getenv("DASHBOARD_SERVER_URL"); v != "" {
		dc.Server.URL = v
	}
	if v := os.Getenv("STATION_TIMEZONE"); v != "" {
		dc.Timezone = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		dc.Logging.Level = v
	}
}

// Validate checks if dashboard configuration is valid
func (dc *DashboardConfig) Validate() error {
	u, err := url.Parse(dc.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server URL must be an http:// or https:// URL")
	}
	if dc.Refresh.Interval < time.Second {
		return fmt.Errorf("refresh interval must be at least 1 second")
	}
	if dc.Refresh.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if dc.Display.Width < 40 {
		return fmt.Errorf("display width must be at least 40")
	}
	if err := dc.Aggregate.Validate(); err != nil {
		return err
	}
	if _, err := LoadLocation(dc.Timezone); err != nil {
		return err
	}
	return dc.Logging.Validate()
}

// Location returns the configured timezone
func (dc *DashboardConfig) Location() *time.Location {
	loc, err := LoadLocation(dc.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// String returns a readable summary of the configuration
func (dc *DashboardConfig) String() string {
	return fmt.Sprintf("DashboardConfig{Server: %s, Refresh: %+v, TableRows: %d, ChartRows: %d, Span: %s, Timezone: %q}",
		dc.Server.URL,
		dc.Refresh,
		dc.Aggregate.TableRows,
		dc.Aggregate.ChartRows,
		dc.Aggregate.Span,
		dc.Timezone,
	)
}
