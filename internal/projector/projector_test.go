package projector

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/afroash/station-monitor/internal/codec"
	"github.com/afroash/station-monitor/internal/models"
)

func decode(t *testing.T, lines ...string) []models.Reading {
	t.Helper()
	c := codec.New(codec.DefaultSchema(), time.UTC)
	out := make([]models.Reading, 0, len(lines))
	for _, l := range lines {
		r := c.Decode(l)
		if r == nil {
			t.Fatalf("Decode(%q) returned nil", l)
		}
		out = append(out, *r)
	}
	return out
}

func TestProject_Columns(t *testing.T) {
	window := decode(t,
		"2024-01-01 12:01:00 - Temp: 23.50 °C - Wind Direction: 270.00 °",
		"2024-01-01 12:00:00 - Humidity: 60.12 % - Temp: 22.00 °C - Status: n/a",
	)

	p := Project(window)

	wantCols := []string{"temp", "wdir", "humid", "Status"}
	if !reflect.DeepEqual(p.Columns, wantCols) {
		t.Errorf("Columns = %v, want %v", p.Columns, wantCols)
	}
	if len(p.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(p.Rows))
	}
	if p.Rows[0].Timestamp != "2024-01-01 12:01:00" {
		t.Errorf("Rows[0].Timestamp = %q", p.Rows[0].Timestamp)
	}

	status, ok := p.Rows[1].Get("Status")
	if !ok || status.Display != "n/a" || status.Numeric != nil {
		t.Errorf("Status = %+v, %v", status, ok)
	}
}

func TestProject_RowsFollowColumnOrder(t *testing.T) {
	window := decode(t,
		"2024-01-01 12:01:00 - Temp: 23.50 °C - Humidity: 60.12 % - Wind Speed: 3.00 m/s",
		"2024-01-01 12:00:00 - Wind Speed: 2.00 m/s - Humidity: 61.00 % - Temp: 22.00 °C",
	)

	p := Project(window)

	wantCols := []string{"temp", "humid", "wspd"}
	if !reflect.DeepEqual(p.Columns, wantCols) {
		t.Fatalf("Columns = %v, want %v", p.Columns, wantCols)
	}
	for i, row := range p.Rows {
		keys := make([]string, 0, len(row.Fields))
		for _, f := range row.Fields {
			keys = append(keys, f.Key)
		}
		if !reflect.DeepEqual(keys, wantCols) {
			t.Errorf("Rows[%d] keys = %v, want %v", i, keys, wantCols)
		}
	}

	data, err := json.Marshal(p.Rows[1])
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.HasPrefix(string(data), `{"timestamp":"2024-01-01 12:00:00","temp":"22.00 °C"`) {
		t.Errorf("JSON = %s", data)
	}
}

func TestProject_Empty(t *testing.T) {
	p := Project(nil)
	if p.Columns == nil || p.Rows == nil {
		t.Fatal("empty payload should have non-nil slices")
	}

	data, err := json.Marshal(p.Rows)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("JSON = %s, want []", data)
	}
}

func TestProject_JSON(t *testing.T) {
	window := decode(t, "2024-01-01 12:00:00 - Schema: 2 - Temp: 23.50 °C - Wind Direction: 270.00 ° - Rain Detector: 0")

	data, err := json.Marshal(Project(window).Rows)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	want := `[{"timestamp":"2024-01-01 12:00:00","temp":"23.50 °C","temp_num":23.5,` +
		`"wdir":"270.00 °","wdir_num":270,"raindet":"0","raindet_num":0}]`
	if string(data) != want {
		t.Errorf("JSON =\n%s\nwant\n%s", data, want)
	}

	var rows []models.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	temp, _ := rows[0].Get("temp")
	if temp.Numeric == nil || *temp.Numeric != 23.5 {
		t.Errorf("temp = %+v", temp)
	}
}

func TestToRow_CopiesNumbers(t *testing.T) {
	window := decode(t, "2024-01-01 12:00:00 - Temp: 23.50 °C")
	row := ToRow(&window[0])

	*window[0].Metrics[0].Value.Numeric = 99
	f, _ := row.Get("temp")
	if *f.Numeric != 23.5 {
		t.Errorf("row shares number with reading: %v", *f.Numeric)
	}
}

func TestWriteHTML(t *testing.T) {
	var b strings.Builder
	if err := WriteHTML(&b, nil); err != nil {
		t.Fatalf("WriteHTML failed: %v", err)
	}
	if b.String() != EmptyHTMLRow {
		t.Errorf("empty output = %q", b.String())
	}

	b.Reset()
	window := decode(t, "2024-01-01 12:00:00 - Temp: 23.50 °C - Note: <b>&</b>")
	if err := WriteHTML(&b, window); err != nil {
		t.Fatalf("WriteHTML failed: %v", err)
	}
	want := "<tr><td>2024-01-01 12:00:00</td><td>Temp: 23.50 °C | Note: &lt;b&gt;&amp;&lt;/b&gt;</td></tr>\n"
	if b.String() != want {
		t.Errorf("output = %q, want %q", b.String(), want)
	}
}
