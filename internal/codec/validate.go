package codec

import (
	"math"
	"strconv"
	"strings"
)

// ValidationError lists every problem found in a sample, not just the first.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid reading: " + strings.Join(e.Problems, "; ")
}

// ParseParams reads one value per schema field through lookup (query or
// form parameters keyed by metric key) and validates it. All problems are
// collected; the returned values are only usable when err is nil.
func (s *Schema) ParseParams(lookup func(key string) (string, bool)) (map[string]float64, error) {
	values := make(map[string]float64, len(s.fields))
	var problems []string

	for _, f := range s.fields {
		raw, ok := lookup(f.Key)
		if !ok {
			problems = append(problems, "Missing parameter: "+f.Key)
			continue
		}

		v, ok := parseValue(f, raw)
		if !ok {
			problems = append(problems, "Invalid value for "+f.Key+": "+raw)
			continue
		}
		if msg := checkRange(f, v); msg != "" {
			problems = append(problems, msg)
			continue
		}
		values[f.Key] = v
	}

	if len(problems) > 0 {
		return values, &ValidationError{Problems: problems}
	}
	return values, nil
}

// Check validates already-numeric values against the schema. Keys that
// are not in the schema are ignored.
func (s *Schema) Check(values map[string]float64) error {
	var problems []string
	for _, f := range s.fields {
		v, ok := values[f.Key]
		if !ok {
			problems = append(problems, "Missing parameter: "+f.Key)
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || (f.Kind == KindInt && v != math.Trunc(v)) {
			problems = append(problems, "Invalid value for "+f.Key+": "+strconv.FormatFloat(v, 'g', -1, 64))
			continue
		}
		if msg := checkRange(f, v); msg != "" {
			problems = append(problems, msg)
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func parseValue(f Field, raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if f.Kind == KindInt {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, false
		}
		return float64(n), true
	}
	// Decimal notation only; ParseFloat would also take hex floats.
	digits := strings.TrimLeft(raw, "+-")
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func checkRange(f Field, v float64) string {
	if f.Min == nil && f.Max == nil {
		return ""
	}
	if (f.Min != nil && v < *f.Min) || (f.Max != nil && v > *f.Max) {
		return f.Key + " out of range (" + formatBound(f.Min) + " to " + formatBound(f.Max) + "): " +
			strconv.FormatFloat(v, 'g', -1, 64)
	}
	return ""
}

func formatBound(b *float64) string {
	if b == nil {
		return "*"
	}
	return strconv.FormatFloat(*b, 'g', -1, 64)
}
