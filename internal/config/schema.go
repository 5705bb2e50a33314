package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/afroash/station-monitor/internal/codec"
)

// MetricConfig describes one metric of the station's log lines
type MetricConfig struct {
	Key      string   `yaml:"key"`
	Label    string   `yaml:"label"`
	Unit     string   `yaml:"unit"`
	Decimals int      `yaml:"decimals"`
	Type     string   `yaml:"type"` // float (default) or int
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
}

// SchemaConfig lists the metrics in log order. An empty list means the
// station's default eighteen metrics.
type SchemaConfig struct {
	Version string         `yaml:"version"`
	Metrics []MetricConfig `yaml:"metrics"`
}

// Build validates the configured metrics and returns the codec schema
func (sc SchemaConfig) Build() (*codec.Schema, error) {
	if len(sc.Metrics) == 0 {
		version := sc.Version
		if version == "" {
			version = codec.DefaultSchemaVersion
		}
		return codec.NewSchema(version, codec.DefaultFields())
	}

	fields := make([]codec.Field, 0, len(sc.Metrics))
	for _, m := range sc.Metrics {
		fields = append(fields, codec.Field{
			Key:      m.Key,
			Label:    m.Label,
			Unit:     m.Unit,
			Decimals: m.Decimals,
			Kind:     codec.Kind(m.Type),
			Min:      m.Min,
			Max:      m.Max,
		})
	}
	schema, err := codec.NewSchema(sc.Version, fields)
	if err != nil {
		return nil, fmt.Errorf("invalid metrics: %w", err)
	}
	return schema, nil
}

// LoadLocation resolves a timezone name for log timestamps. Lines carry no
// offset, so the zone must keep one fixed offset: zones with daylight saving
// or another pending transition are rejected. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	var loc *time.Location
	switch name {
	case "":
		return time.UTC, nil
	case "Local":
		loc = time.Local
	default:
		var err error
		loc, err = time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
		}
	}
	if _, end := time.Now().In(loc).ZoneBounds(); !end.IsZero() {
		return nil, fmt.Errorf("timezone %q changes offset at %s; use a fixed-offset zone such as UTC or Asia/Kuala_Lumpur",
			name, end.UTC().Format(time.RFC3339))
	}
	return loc, nil
}
