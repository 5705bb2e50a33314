package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// NumericSuffix is appended to a metric key to name its parsed number on the wire.
const NumericSuffix = "_num"

// Field is one metric of a wire row.
type Field struct {
	Key     string
	Display string
	Numeric *float64
}

// Row is the flat, ordered wire representation of one reading:
//
//	{"timestamp": "...", "temp": "23.50 °C", "temp_num": 23.5, ...}
//
// Field order is preserved in both directions.
type Row struct {
	Timestamp string
	Fields    []Field
}

// Get returns the field stored under key.
func (r *Row) Get(key string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Keys returns the metric keys in row order.
func (r *Row) Keys() []string {
	keys := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		keys[i] = f.Key
	}
	return keys
}

// MarshalJSON writes the row as a single flat object in field order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writePair(&buf, "timestamp", r.Timestamp); err != nil {
		return nil, err
	}
	for _, f := range r.Fields {
		buf.WriteByte(',')
		if err := writePair(&buf, f.Key, f.Display); err != nil {
			return nil, err
		}
		if f.Numeric != nil {
			buf.WriteByte(',')
			if err := writePair(&buf, f.Key+NumericSuffix, *f.Numeric); err != nil {
				return nil, err
			}
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writePair(buf *bytes.Buffer, key string, value interface{}) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// UnmarshalJSON reads a flat object, pairing "<key>_num" numbers with their
// display field and keeping first-seen key order.
func (r *Row) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("row must be a JSON object")
	}

	*r = Row{}
	index := make(map[string]int)
	field := func(key string) *Field {
		if i, ok := index[key]; ok {
			return &r.Fields[i]
		}
		index[key] = len(r.Fields)
		r.Fields = append(r.Fields, Field{Key: key})
		return &r.Fields[len(r.Fields)-1]
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected row key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("failed to decode %q: %w", key, err)
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}

		if key == "timestamp" {
			r.Timestamp = rawText(raw)
			continue
		}

		if base, isNum := strings.CutSuffix(key, NumericSuffix); isNum && base != "" && isJSONNumber(raw) {
			var n float64
			if err := json.Unmarshal(raw, &n); err != nil {
				return fmt.Errorf("failed to decode %q: %w", key, err)
			}
			field(base).Numeric = &n
			continue
		}

		field(key).Display = rawText(raw)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// rawText renders a scalar JSON value as display text.
func rawText(raw json.RawMessage) string {
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

func isJSONNumber(raw json.RawMessage) bool {
	c := raw[0]
	return c == '-' || (c >= '0' && c <= '9')
}
