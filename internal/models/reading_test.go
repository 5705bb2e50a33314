// internal/models/reading_test.go
package models

import (
	"math"
	"testing"
	"time"
)

func floatPtr(v float64) *float64 { return &v }

func TestReading_Get(t *testing.T) {
	r := Reading{
		Timestamp: "2024-01-01 12:00:00",
		Metrics: []Metric{
			{Key: "temp", Label: "Temp", Value: MetricValue{Display: "23.50 °C", Numeric: floatPtr(23.5)}},
			{Key: "raindet", Label: "Rain Detector", Value: MetricValue{Display: "dry"}},
		},
	}

	v, ok := r.Get("temp")
	if !ok {
		t.Fatal("Get(temp) not found")
	}
	if v.Display != "23.50 °C" || v.Number() != 23.5 {
		t.Errorf("temp = %+v", v)
	}

	v, ok = r.Get("raindet")
	if !ok {
		t.Fatal("Get(raindet) not found")
	}
	if v.HasNumber() {
		t.Error("display-only value should have no number")
	}
	if !math.IsNaN(v.Number()) {
		t.Errorf("Number() = %v, want NaN", v.Number())
	}

	if _, ok := r.Get("wdir"); ok {
		t.Error("Get(wdir) should not be found")
	}

	keys := r.Keys()
	if len(keys) != 2 || keys[0] != "temp" || keys[1] != "raindet" {
		t.Errorf("Keys() = %v, want [temp raindet]", keys)
	}
}

func TestParseTimestamp(t *testing.T) {
	loc := time.FixedZone("MYT", 8*60*60)

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{
			name:  "log layout",
			input: "2024-03-05 06:07:08",
			want:  time.Date(2024, 3, 5, 6, 7, 8, 0, loc),
		},
		{
			name:  "surrounding whitespace",
			input: "  2024-03-05 06:07:08 ",
			want:  time.Date(2024, 3, 5, 6, 7, 8, 0, loc),
		},
		{
			name:  "T separator",
			input: "2024-03-05T06:07:08",
			want:  time.Date(2024, 3, 5, 6, 7, 8, 0, loc),
		},
		{
			name:  "rfc3339",
			input: "2024-03-05T06:07:08Z",
			want:  time.Date(2024, 3, 5, 6, 7, 8, 0, time.UTC),
		},
		{
			name:    "garbage",
			input:   "yesterday",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input, loc)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimestamp failed: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	loc := time.FixedZone("MYT", 8*60*60)
	ts := time.Date(2024, 1, 1, 0, 30, 15, 999, time.UTC)

	got := FormatTimestamp(ts, loc)
	if got != "2024-01-01 08:30:15" {
		t.Errorf("FormatTimestamp = %q, want 2024-01-01 08:30:15", got)
	}
}

func TestSample_Copy(t *testing.T) {
	original := NewSample("station-01", map[string]float64{"temp": 22.5})
	cp := original.Copy()

	cp.Values["temp"] = 99
	if original.Values["temp"] != 22.5 {
		t.Error("Copy shares the values map with the original")
	}
	if cp.SensorID != original.SensorID || !cp.Timestamp.Equal(original.Timestamp) {
		t.Errorf("Copy = %+v, want %+v", cp, original)
	}

	var nilSample *Sample
	if nilSample.Copy() != nil {
		t.Error("Copy of nil should be nil")
	}
}
