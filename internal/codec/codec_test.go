package codec

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/afroash/station-monitor/internal/models"
)

var testLocation = time.FixedZone("MYT", 8*60*60)

func newTestCodec() *Codec {
	return New(DefaultSchema(), testLocation)
}

// fullSample returns a complete sample for DefaultSchema
func fullSample() *models.Sample {
	return &models.Sample{
		SensorID:  "station-01",
		Timestamp: time.Date(2024, 5, 1, 14, 30, 5, 0, testLocation),
		Values: map[string]float64{
			"temp": 23.5, "humid": 60.12, "press": 1008.456, "gas": 12.3,
			"uv": 3.27, "wspd": 4.005, "wdir": 270, "raindet": 0, "rainamt": 1.25,
			"solvolt": 5.1, "solcurr": 210.4, "solpwr": 12.345,
			"batvolt": 3.95, "batcurr": -120.5, "batpwr": -0.4764,
			"sysvolt": 3.6, "syscurr": 80, "syspwr": 0.2884,
		},
	}
}

func TestEncode_Layout(t *testing.T) {
	c := newTestCodec()

	line, err := c.Encode(fullSample())
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := "2024-05-01 14:30:05 - Schema: 2 - Temp: 23.50 °C - Humidity: 60.12 % - " +
		"Pressure: 1008.46 hPa - Gas: 12.30 kΩ - UV Index: 3.3 - Wind Speed: 4.00 m/s - " +
		"Wind Direction: 270.00 ° - Rain Detector: 0 - Rain Amount: 1.2 mm - " +
		"Solar Voltage: 5.10 V - Solar Current: 210.40 mA - Solar Power: 12.345 W - " +
		"Battery Voltage: 3.95 V - Battery Current: -120.50 mA - Battery Power: -0.476 W - " +
		"System Voltage: 3.60 V - System Current: 80.00 mA - System Power: 0.288 W"
	if line != want {
		t.Errorf("Encode =\n%s\nwant\n%s", line, want)
	}
	if strings.ContainsAny(line, "\r\n") {
		t.Error("encoded line must not contain line breaks")
	}
}

func TestEncode_UsesCodecLocation(t *testing.T) {
	c := newTestCodec()
	s := fullSample()
	s.Timestamp = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	line, err := c.Encode(s)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.HasPrefix(line, "2024-05-01 08:00:00 - ") {
		t.Errorf("line starts %q, want local time 08:00:00", line[:22])
	}
}

func TestEncode_RejectsIncompleteSample(t *testing.T) {
	c := newTestCodec()
	s := fullSample()
	delete(s.Values, "temp")
	delete(s.Values, "syspwr")
	s.Values["raindet"] = 0.5
	s.Values["wspd"] = math.NaN()

	line, err := c.Encode(s)
	if err == nil {
		t.Fatalf("Encode should fail, got %q", line)
	}
	if line != "" {
		t.Errorf("no line should be produced, got %q", line)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
	want := []string{
		"Missing parameter: temp",
		"Invalid value for wspd: NaN",
		"Invalid value for raindet: 0.5",
		"Missing parameter: syspwr",
	}
	if len(verr.Problems) != len(want) {
		t.Fatalf("Problems = %v, want %v", verr.Problems, want)
	}
	for i := range want {
		if verr.Problems[i] != want[i] {
			t.Errorf("Problems[%d] = %q, want %q", i, verr.Problems[i], want[i])
		}
	}
}

func TestEncode_ZeroTimestamp(t *testing.T) {
	c := newTestCodec()
	s := fullSample()
	s.Timestamp = time.Time{}

	if _, err := c.Encode(s); err == nil {
		t.Error("Encode should reject a zero timestamp")
	}
	if _, err := c.Encode(nil); err == nil {
		t.Error("Encode should reject a nil sample")
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	c := newTestCodec()
	samples := []*models.Sample{fullSample()}

	negative := fullSample()
	for k := range negative.Values {
		if k != "raindet" {
			negative.Values[k] = -negative.Values[k] - 0.0012
		}
	}
	negative.Values["raindet"] = 1
	samples = append(samples, negative)

	tiny := fullSample()
	tiny.Values["temp"] = -0.001
	tiny.Values["solpwr"] = 0.0004
	samples = append(samples, tiny)

	for _, s := range samples {
		line, err := c.Encode(s)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		r := c.Decode(line)
		if r == nil {
			t.Fatalf("Decode(%q) = nil", line)
		}
		if r.Schema != DefaultSchemaVersion {
			t.Errorf("Schema = %q, want %q", r.Schema, DefaultSchemaVersion)
		}
		if r.Timestamp != models.FormatTimestamp(s.Timestamp, testLocation) {
			t.Errorf("Timestamp = %q", r.Timestamp)
		}

		fields := c.Schema().Fields()
		if len(r.Metrics) != len(fields) {
			t.Fatalf("decoded %d metrics, want %d", len(r.Metrics), len(fields))
		}
		for i, f := range fields {
			m := r.Metrics[i]
			if m.Key != f.Key {
				t.Errorf("metric %d key = %q, want %q", i, m.Key, f.Key)
			}
			wantDisplay := f.Format(s.Values[f.Key])
			if f.Unit != "" {
				wantDisplay += " " + f.Unit
			}
			if m.Value.Display != wantDisplay {
				t.Errorf("%s display = %q, want %q", f.Key, m.Value.Display, wantDisplay)
			}
			if !m.Value.HasNumber() {
				t.Fatalf("%s has no numeric value", f.Key)
			}
			tolerance := 0.5*math.Pow(10, -float64(f.Decimals)) + 1e-9
			if diff := math.Abs(m.Value.Number() - s.Values[f.Key]); diff > tolerance {
				t.Errorf("%s numeric = %v, want %v within %v", f.Key, m.Value.Number(), s.Values[f.Key], tolerance)
			}
		}
	}
}

func TestEncode_NegativeZeroIsCanonical(t *testing.T) {
	c := newTestCodec()
	s := fullSample()
	s.Values["temp"] = -0.001

	line, err := c.Encode(s)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !strings.Contains(line, "Temp: 0.00 °C") {
		t.Errorf("line %q should contain Temp: 0.00 °C", line)
	}
}

func TestEncode_LegacySchemaWithoutVersion(t *testing.T) {
	schema, err := NewSchema("", []Field{
		{Key: "temp", Label: "Temp", Unit: "°C", Decimals: 1},
		{Key: "raindet", Label: "Rain Detector", Kind: KindInt},
	})
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}
	c := New(schema, testLocation)

	line, err := c.Encode(&models.Sample{
		Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, testLocation),
		Values:    map[string]float64{"temp": 21.06, "raindet": 1},
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if line != "2024-01-02 03:04:05 - Temp: 21.1 °C - Rain Detector: 1" {
		t.Errorf("Encode = %q", line)
	}
}

func TestDecode(t *testing.T) {
	c := newTestCodec()

	tests := []struct {
		name      string
		line      string
		wantNil   bool
		timestamp string
		schema    string
		metrics   []models.Metric
	}{
		{name: "blank", line: "", wantNil: true},
		{name: "whitespace only", line: "   \t ", wantNil: true},
		{name: "single segment", line: "2024-01-01 00:00:00", wantNil: true},
		{name: "truncated mid segment", line: "2024-01-01 00:00:00 Temp: 2", wantNil: true},
		{
			name:      "timestamp only",
			line:      "2024-01-01 00:00:00 - garbage without colon",
			timestamp: "2024-01-01 00:00:00",
		},
		{
			name:      "extra whitespace and keys with spaces",
			line:      "  2024-01-01 00:00:00   -   Wind Speed :   4.00 m/s   - Solar Power:12.345 W \r",
			timestamp: "2024-01-01 00:00:00",
			metrics: []models.Metric{
				{Key: "wspd", Label: "Wind Speed", Value: mv("4.00 m/s", 4)},
				{Key: "solpwr", Label: "Solar Power", Value: mv("12.345 W", 12.345)},
			},
		},
		{
			name:      "segment without colon is skipped",
			line:      "2024-01-01 00:00:00 - Temp: 23.50 °C - oops - Humidity: 60.12 %",
			timestamp: "2024-01-01 00:00:00",
			metrics: []models.Metric{
				{Key: "temp", Label: "Temp", Value: mv("23.50 °C", 23.5)},
				{Key: "humid", Label: "Humidity", Value: mv("60.12 %", 60.12)},
			},
		},
		{
			name:      "unknown label and display-only value",
			line:      "2024-01-01 00:00:00 - Schema: 3 - Soil Moisture: 41 % - Status: ok",
			timestamp: "2024-01-01 00:00:00",
			schema:    "3",
			metrics: []models.Metric{
				{Key: "Soil Moisture", Label: "Soil Moisture", Value: mv("41 %", 41)},
				{Key: "Status", Label: "Status", Value: models.MetricValue{Display: "ok"}},
			},
		},
		{
			name:      "value containing a colon keeps the rest",
			line:      "2024-01-01 00:00:00 - Note: at 12:30 calibrated",
			timestamp: "2024-01-01 00:00:00",
			metrics: []models.Metric{
				{Key: "Note", Label: "Note", Value: mv("at 12:30 calibrated", 12)},
			},
		},
		{
			name:      "legacy variant labels resolve case-insensitively",
			line:      "2023-12-31 23:59:59 - temp: 21 °C - system voltage: 4.10 V - Rain Detector: 1",
			timestamp: "2023-12-31 23:59:59",
			metrics: []models.Metric{
				{Key: "temp", Label: "temp", Value: mv("21 °C", 21)},
				{Key: "sysvolt", Label: "system voltage", Value: mv("4.10 V", 4.1)},
				{Key: "raindet", Label: "Rain Detector", Value: mv("1", 1)},
			},
		},
		{
			name:      "repeated label overwrites in place",
			line:      "2024-01-01 00:00:00 - Temp: 1 °C - Gas: 2 kΩ - Temp: 3 °C",
			timestamp: "2024-01-01 00:00:00",
			metrics: []models.Metric{
				{Key: "temp", Label: "Temp", Value: mv("3 °C", 3)},
				{Key: "gas", Label: "Gas", Value: mv("2 kΩ", 2)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := c.Decode(tt.line)
			if tt.wantNil {
				if r != nil {
					t.Errorf("Decode = %+v, want nil", r)
				}
				return
			}
			if r == nil {
				t.Fatal("Decode returned nil")
			}
			if r.Timestamp != tt.timestamp {
				t.Errorf("Timestamp = %q, want %q", r.Timestamp, tt.timestamp)
			}
			if r.Schema != tt.schema {
				t.Errorf("Schema = %q, want %q", r.Schema, tt.schema)
			}
			if len(r.Metrics) != len(tt.metrics) {
				t.Fatalf("Metrics = %+v, want %+v", r.Metrics, tt.metrics)
			}
			for i, want := range tt.metrics {
				got := r.Metrics[i]
				if got.Key != want.Key || got.Label != want.Label || got.Value.Display != want.Value.Display {
					t.Errorf("metric %d = %+v, want %+v", i, got, want)
				}
				if got.Value.HasNumber() != want.Value.HasNumber() {
					t.Errorf("metric %d HasNumber = %v, want %v", i, got.Value.HasNumber(), want.Value.HasNumber())
				}
				if want.Value.HasNumber() && got.Value.Number() != want.Value.Number() {
					t.Errorf("metric %d Number = %v, want %v", i, got.Value.Number(), want.Value.Number())
				}
			}
		})
	}
}

func mv(display string, n float64) models.MetricValue {
	return models.MetricValue{Display: display, Numeric: &n}
}

func TestExtractNumber(t *testing.T) {
	tests := []struct {
		input string
		want  float64
		ok    bool
	}{
		{"23.50 °C", 23.5, true},
		{"-3.25 mA", -3.25, true},
		{"270 °", 270, true},
		{"12.", 12, true},
		{"UV 3.3 index", 3.3, true},
		{"kΩ -0.5 then 7", -0.5, true},
		{"--4", -4, true},
		{".5", 5, true},
		{"n/a", 0, false},
		{"", 0, false},
		{"-", 0, false},
	}

	for _, tt := range tests {
		got, ok := ExtractNumber(tt.input)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ExtractNumber(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}
