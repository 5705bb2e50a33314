package codec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the numeric type accepted for a field
type Kind string

const (
	KindFloat Kind = "float"
	KindInt   Kind = "int"
)

// DefaultSchemaVersion is written into every line encoded with DefaultSchema.
const DefaultSchemaVersion = "2"

// Field describes one metric of a log line: its stable key, the label
// written to the log, the unit suffix and the decimal precision applied
// before encoding.
type Field struct {
	Key      string
	Label    string
	Unit     string
	Decimals int
	Kind     Kind
	Min      *float64
	Max      *float64
}

// Format renders v with the field's precision. Negative zero is written
// as zero so stored text stays canonical.
func (f Field) Format(v float64) string {
	decimals := f.Decimals
	if f.Kind == KindInt {
		decimals = 0
	}
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	if strings.HasPrefix(s, "-") && strings.Trim(s[1:], "0.") == "" {
		s = s[1:]
	}
	return s
}

// Segment renders "Label: value unit" for v.
func (f Field) Segment(v float64) string {
	s := f.Label + ": " + f.Format(v)
	if f.Unit != "" {
		s += " " + f.Unit
	}
	return s
}

// Schema is the ordered list of fields every encoded line carries.
type Schema struct {
	Version string

	fields  []Field
	byKey   map[string]int
	byLabel map[string]int
	byFold  map[string]int
}

// NewSchema validates fields and builds a Schema. Field order is the
// segment order of encoded lines.
func NewSchema(version string, fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema needs at least one field")
	}
	if strings.ContainsAny(version, "\r\n") || strings.Contains(version, Separator) {
		return nil, fmt.Errorf("invalid schema version %q", version)
	}

	s := &Schema{
		Version: version,
		fields:  make([]Field, 0, len(fields)),
		byKey:   make(map[string]int, len(fields)),
		byLabel: make(map[string]int, len(fields)),
		byFold:  make(map[string]int, len(fields)),
	}

	for _, f := range fields {
		if f.Kind == "" {
			f.Kind = KindFloat
		}
		if err := validateField(f); err != nil {
			return nil, err
		}
		if _, dup := s.byKey[f.Key]; dup {
			return nil, fmt.Errorf("duplicate metric key %q", f.Key)
		}
		if _, dup := s.byFold[strings.ToLower(f.Label)]; dup {
			return nil, fmt.Errorf("duplicate metric label %q", f.Label)
		}
		i := len(s.fields)
		s.fields = append(s.fields, f)
		s.byKey[f.Key] = i
		s.byLabel[f.Label] = i
		s.byFold[strings.ToLower(f.Label)] = i
	}
	return s, nil
}

func validateField(f Field) error {
	if f.Key == "" {
		return fmt.Errorf("metric key is required")
	}
	if strings.ContainsAny(f.Key, " :\r\n") {
		return fmt.Errorf("metric key %q must not contain spaces or colons", f.Key)
	}
	if strings.HasSuffix(f.Key, "_num") {
		return fmt.Errorf("metric key %q must not end in _num", f.Key)
	}
	label := strings.TrimSpace(f.Label)
	if label == "" || label != f.Label {
		return fmt.Errorf("metric %q needs a label without surrounding spaces", f.Key)
	}
	if strings.ContainsAny(f.Label, ":\r\n") || strings.Contains(f.Label, Separator) {
		return fmt.Errorf("metric label %q must not contain ':' or %q", f.Label, Separator)
	}
	if strings.EqualFold(f.Label, SchemaKey) {
		return fmt.Errorf("metric label %q is reserved", f.Label)
	}
	if strings.ContainsAny(f.Unit, "\r\n") || strings.Contains(f.Unit, Separator) {
		return fmt.Errorf("metric %q has an invalid unit %q", f.Key, f.Unit)
	}
	if f.Kind != KindFloat && f.Kind != KindInt {
		return fmt.Errorf("metric %q has unknown type %q", f.Key, f.Kind)
	}
	if f.Decimals < 0 || f.Decimals > 10 {
		return fmt.Errorf("metric %q decimals must be between 0 and 10", f.Key)
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return fmt.Errorf("metric %q has min greater than max", f.Key)
	}
	for _, bound := range []*float64{f.Min, f.Max} {
		if bound != nil && (math.IsNaN(*bound) || math.IsInf(*bound, 0)) {
			return fmt.Errorf("metric %q has a non-finite bound", f.Key)
		}
	}
	return nil
}

// Fields returns a copy of the fields in encode order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Keys returns the metric keys in encode order.
func (s *Schema) Keys() []string {
	keys := make([]string, len(s.fields))
	for i, f := range s.fields {
		keys[i] = f.Key
	}
	return keys
}

// Field returns the field with the given key.
func (s *Schema) Field(key string) (Field, bool) {
	i, ok := s.byKey[key]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// KeyForLabel resolves a log label to its metric key. Labels are matched
// exactly first, then case-insensitively.
func (s *Schema) KeyForLabel(label string) (string, bool) {
	if i, ok := s.byLabel[label]; ok {
		return s.fields[i].Key, true
	}
	if i, ok := s.byFold[strings.ToLower(label)]; ok {
		return s.fields[i].Key, true
	}
	return "", false
}

// DefaultSchema returns the station's eighteen metrics in log order.
func DefaultSchema() *Schema {
	s, err := NewSchema(DefaultSchemaVersion, DefaultFields())
	if err != nil {
		panic(fmt.Sprintf("codec: default schema: %v", err))
	}
	return s
}

// DefaultFields returns the field list behind DefaultSchema.
func DefaultFields() []Field {
	return []Field{
		// Environment
		{Key: "temp", Label: "Temp", Unit: "°C", Decimals: 2},
		{Key: "humid", Label: "Humidity", Unit: "%", Decimals: 2},
		{Key: "press", Label: "Pressure", Unit: "hPa", Decimals: 2},
		{Key: "gas", Label: "Gas", Unit: "kΩ", Decimals: 2},
		{Key: "uv", Label: "UV Index", Decimals: 1},

		// Wind & rain
		{Key: "wspd", Label: "Wind Speed", Unit: "m/s", Decimals: 2},
		{Key: "wdir", Label: "Wind Direction", Unit: "°", Decimals: 2},
		{Key: "raindet", Label: "Rain Detector", Kind: KindInt},
		{Key: "rainamt", Label: "Rain Amount", Unit: "mm", Decimals: 1},

		// Solar
		{Key: "solvolt", Label: "Solar Voltage", Unit: "V", Decimals: 2},
		{Key: "solcurr", Label: "Solar Current", Unit: "mA", Decimals: 2},
		{Key: "solpwr", Label: "Solar Power", Unit: "W", Decimals: 3},

		// Battery
		{Key: "batvolt", Label: "Battery Voltage", Unit: "V", Decimals: 2},
		{Key: "batcurr", Label: "Battery Current", Unit: "mA", Decimals: 2},
		{Key: "batpwr", Label: "Battery Power", Unit: "W", Decimals: 3},

		// System
		{Key: "sysvolt", Label: "System Voltage", Unit: "V", Decimals: 2},
		{Key: "syscurr", Label: "System Current", Unit: "mA", Decimals: 2},
		{Key: "syspwr", Label: "System Power", Unit: "W", Decimals: 3},
	}
}
