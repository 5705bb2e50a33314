package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Sample is one complete set of measurements captured by the sensor unit,
// keyed by stable metric key (temp, solpwr, ...). It is the input to the
// line codec.
type Sample struct {
	SensorID  string             `json:"sensor_id,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// NewSample creates a Sample stamped with the current time
func NewSample(sensorID string, values map[string]float64) *Sample {
	return &Sample{
		SensorID:  sensorID,
		Timestamp: time.Now(),
		Values:    values,
	}
}

// Copy returns a deep copy of the Sample
func (s *Sample) Copy() *Sample {
	if s == nil {
		return nil
	}
	values := make(map[string]float64, len(s.Values))
	for k, v := range s.Values {
		values[k] = v
	}
	return &Sample{
		SensorID:  s.SensorID,
		Timestamp: s.Timestamp,
		Values:    values,
	}
}

// String returns the sample with keys sorted, for logs.
func (s *Sample) String() string {
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%g", k, s.Values[k]))
	}
	return fmt.Sprintf("SensorID: %s, Timestamp: %s, %s",
		s.SensorID,
		s.Timestamp.Format(time.RFC3339),
		strings.Join(parts, " "))
}

// MetricValue carries one measurement as it was stored (Display, unit
// included) and the first decimal number found in it (Numeric). A value
// without a number is still valid and renders display-only.
type MetricValue struct {
	Display string
	Numeric *float64
}

// Number returns the parsed magnitude, or NaN when none was found.
func (v MetricValue) Number() float64 {
	if v.Numeric == nil {
		return math.NaN()
	}
	return *v.Numeric
}

// HasNumber reports whether a numeric token was parsed from Display.
func (v MetricValue) HasNumber() bool {
	return v.Numeric != nil
}

// Metric is one decoded "Label: value" segment of a log line.
type Metric struct {
	Key   string
	Label string
	Value MetricValue
}

// Reading is a decoded log line. Metrics keep the segment order of the line.
type Reading struct {
	Timestamp string
	Schema    string
	Metrics   []Metric
}

// Get returns the value stored under key.
func (r *Reading) Get(key string) (MetricValue, bool) {
	for _, m := range r.Metrics {
		if m.Key == key {
			return m.Value, true
		}
	}
	return MetricValue{}, false
}

// Keys returns the metric keys in line order.
func (r *Reading) Keys() []string {
	keys := make([]string, len(r.Metrics))
	for i, m := range r.Metrics {
		keys[i] = m.Key
	}
	return keys
}

// Time parses the timestamp token in loc using the log layout.
func (r *Reading) Time(loc *time.Location) (time.Time, error) {
	return ParseTimestamp(r.Timestamp, loc)
}

// TimestampLayout is the layout of the first token of every log line.
const TimestampLayout = "2006-01-02 15:04:05"

// FormatTimestamp renders t in loc with second precision.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(TimestampLayout)
}

// ParseTimestamp parses a log timestamp. RFC 3339 is accepted as well so
// that hand-edited or imported lines still plot.
func ParseTimestamp(ts string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	ts = strings.TrimSpace(ts)
	if t, err := time.ParseInLocation(TimestampLayout, ts, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", ts, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %q", ts)
}
