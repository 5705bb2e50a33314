// Package aggregate derives everything the dashboard draws from a window
// of wire rows: aligned time series, the trailing chart window and the
// wind, battery and power indicators.
package aggregate

import (
	"fmt"
	"time"
)

// Group is a set of metric keys plotted together.
type Group struct {
	Name string   `yaml:"name" json:"name"`
	Keys []string `yaml:"keys" json:"keys"`
	// ZeroBased pins the value axis at zero (used for voltage).
	ZeroBased bool `yaml:"zero_based" json:"zero_based"`
}

// BatteryPolicy maps a voltage to a charge percentage and band.
type BatteryPolicy struct {
	Key         string  `yaml:"key" json:"key"`
	EmptyVolts  float64 `yaml:"empty_volts" json:"empty_volts"`
	FullVolts   float64 `yaml:"full_volts" json:"full_volts"`
	FullAbove   float64 `yaml:"full_above" json:"full_above"`
	MediumAbove float64 `yaml:"medium_above" json:"medium_above"`
}

// FlowKeys names the power metrics behind each power-flow edge.
type FlowKeys struct {
	Solar   string `yaml:"solar" json:"solar"`
	Battery string `yaml:"battery" json:"battery"`
	System  string `yaml:"system" json:"system"`
}

// Config holds the dashboard's aggregation settings.
type Config struct {
	TableRows  int            `yaml:"table_rows"`
	ChartRows  int            `yaml:"chart_rows"`
	Span       time.Duration  `yaml:"span"`
	Location   *time.Location `yaml:"-"`
	Groups     []Group        `yaml:"groups"`
	CompassKey string         `yaml:"compass_key"`
	Battery    BatteryPolicy  `yaml:"battery"`
	Flow       FlowKeys       `yaml:"flow"`
}

// DefaultGroups returns the four chart groups of the station dashboard.
func DefaultGroups() []Group {
	return []Group{
		{Name: "environment", Keys: []string{"press", "wspd", "raindet"}},
		{Name: "power", Keys: []string{"solpwr", "syspwr"}},
		{Name: "temperature", Keys: []string{"temp"}},
		{Name: "voltage", Keys: []string{"sysvolt"}, ZeroBased: true},
	}
}

// DefaultBatteryPolicy covers a single Li-ion cell: 2.7 V empty, 4.5 V full.
func DefaultBatteryPolicy() BatteryPolicy {
	return BatteryPolicy{
		Key:         "sysvolt",
		EmptyVolts:  2.7,
		FullVolts:   4.5,
		FullAbove:   70,
		MediumAbove: 40,
	}
}

// DefaultConfig returns the standard dashboard settings.
func DefaultConfig() Config {
	return Config{
		TableRows:  3,
		ChartRows:  6000, // ~24h at ~15s per sample
		Span:       24 * time.Hour,
		Location:   time.UTC,
		Groups:     DefaultGroups(),
		CompassKey: "wdir",
		Battery:    DefaultBatteryPolicy(),
		Flow:       FlowKeys{Solar: "solpwr", Battery: "batpwr", System: "syspwr"},
	}
}

// ApplyDefaults fills zero values from DefaultConfig
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.TableRows == 0 {
		c.TableRows = d.TableRows
	}
	if c.ChartRows == 0 {
		c.ChartRows = d.ChartRows
	}
	if c.Span == 0 {
		c.Span = d.Span
	}
	if c.Location == nil {
		c.Location = d.Location
	}
	if len(c.Groups) == 0 {
		c.Groups = d.Groups
	}
	if c.CompassKey == "" {
		c.CompassKey = d.CompassKey
	}
	if c.Battery.Key == "" {
		c.Battery.Key = d.Battery.Key
	}
	if c.Battery.EmptyVolts == 0 && c.Battery.FullVolts == 0 {
		c.Battery.EmptyVolts = d.Battery.EmptyVolts
		c.Battery.FullVolts = d.Battery.FullVolts
	}
	if c.Battery.FullAbove == 0 && c.Battery.MediumAbove == 0 {
		c.Battery.FullAbove = d.Battery.FullAbove
		c.Battery.MediumAbove = d.Battery.MediumAbove
	}
	if c.Flow.Solar == "" {
		c.Flow.Solar = d.Flow.Solar
	}
	if c.Flow.Battery == "" {
		c.Flow.Battery = d.Flow.Battery
	}
	if c.Flow.System == "" {
		c.Flow.System = d.Flow.System
	}
}

// FetchRows is how many rows one refresh needs: enough for both the table
// and the charts.
func (c *Config) FetchRows() int {
	return max(c.TableRows, c.ChartRows)
}

// Validate checks the settings
func (c *Config) Validate() error {
	if c.TableRows < 1 {
		return fmt.Errorf("table_rows must be at least 1")
	}
	if c.ChartRows < 1 {
		return fmt.Errorf("chart_rows must be at least 1")
	}
	if c.Span <= 0 {
		return fmt.Errorf("span must be positive")
	}
	for i, g := range c.Groups {
		if g.Name == "" {
			return fmt.Errorf("group %d: name is required", i)
		}
		if len(g.Keys) == 0 {
			return fmt.Errorf("group %q: at least one key is required", g.Name)
		}
	}
	if c.Battery.FullVolts <= c.Battery.EmptyVolts {
		return fmt.Errorf("battery full_volts (%.2f) must be greater than empty_volts (%.2f)",
			c.Battery.FullVolts, c.Battery.EmptyVolts)
	}
	if c.Battery.MediumAbove > c.Battery.FullAbove {
		return fmt.Errorf("battery medium_above (%.0f) must not exceed full_above (%.0f)",
			c.Battery.MediumAbove, c.Battery.FullAbove)
	}
	return nil
}
