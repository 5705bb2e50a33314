// Package codec turns samples into single log lines and log lines back into
// readings. A line looks like
//
//	2024-01-01 12:00:00 - Schema: 2 - Temp: 23.50 °C - Humidity: 60.12 % - ...
//
// Segments follow the schema order. Decoding is purely textual so lines
// written under older or newer schemas still decode.
package codec

import (
	"fmt"
	"strings"
	"time"

	"github.com/afroash/station-monitor/internal/models"
)

const (
	// Separator joins the timestamp and every segment of a line.
	Separator = " - "

	// SchemaKey is the reserved segment label carrying the schema version.
	SchemaKey = "Schema"
)

// Codec encodes and decodes log lines for one schema.
type Codec struct {
	schema   *Schema
	location *time.Location
}

// New creates a codec. Timestamps are written in loc (UTC if nil).
func New(schema *Schema, loc *time.Location) *Codec {
	if loc == nil {
		loc = time.UTC
	}
	return &Codec{schema: schema, location: loc}
}

// Schema returns the codec's schema
func (c *Codec) Schema() *Schema {
	return c.schema
}

// Location returns the zone timestamps are written in
func (c *Codec) Location() *time.Location {
	return c.location
}

// Encode renders a complete sample as one line without the trailing
// newline. Every schema field must be present and valid; otherwise a
// *ValidationError listing every problem is returned.
func (c *Codec) Encode(sample *models.Sample) (string, error) {
	if sample == nil {
		return "", fmt.Errorf("sample is nil")
	}

	var problems []string
	if sample.Timestamp.IsZero() {
		problems = append(problems, "Missing timestamp")
	}
	if err := c.schema.Check(sample.Values); err != nil {
		problems = append(problems, err.(*ValidationError).Problems...)
	}
	if len(problems) > 0 {
		return "", &ValidationError{Problems: problems}
	}

	var b strings.Builder
	b.WriteString(models.FormatTimestamp(sample.Timestamp, c.location))
	if c.schema.Version != "" {
		b.WriteString(Separator)
		b.WriteString(SchemaKey + ": " + c.schema.Version)
	}
	for _, f := range c.schema.fields {
		b.WriteString(Separator)
		b.WriteString(f.Segment(sample.Values[f.Key]))
	}
	return b.String(), nil
}

// Decode parses one line. It returns nil for blank lines and for lines
// with fewer than two segments. Segments without a colon are skipped.
func (c *Codec) Decode(line string) *models.Reading {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	tokens := strings.Split(line, Separator)
	if len(tokens) < 2 {
		return nil
	}

	reading := &models.Reading{Timestamp: strings.TrimSpace(tokens[0])}
	seen := make(map[string]int, len(tokens))

	for _, tok := range tokens[1:] {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		label, value, ok := strings.Cut(tok, ":")
		if !ok {
			continue
		}
		label = strings.TrimSpace(label)
		value = strings.TrimSpace(value)
		if label == "" {
			continue
		}
		if label == SchemaKey {
			reading.Schema = value
			continue
		}

		key := label
		if k, ok := c.schema.KeyForLabel(label); ok {
			key = k
		}

		mv := models.MetricValue{Display: value}
		if n, ok := ExtractNumber(value); ok {
			mv.Numeric = &n
		}

		// A repeated label overwrites the earlier value in place.
		if i, dup := seen[key]; dup {
			reading.Metrics[i].Value = mv
			continue
		}
		seen[key] = len(reading.Metrics)
		reading.Metrics = append(reading.Metrics, models.Metric{Key: key, Label: label, Value: mv})
	}
	return reading
}
