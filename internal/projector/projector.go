// Package projector turns decoded readings into the flat rows served to
// clients. It is the only shape stored data leaves the server in.
package projector

import (
	"cmp"
	"html"
	"io"
	"slices"
	"strings"

	"github.com/afroash/station-monitor/internal/models"
)

// Payload is a projected window of readings.
type Payload struct {
	// Columns lists every metric key in first-seen order across the window.
	Columns []string
	Rows    []models.Row
}

// Project converts readings (newest first) into wire rows in the same order.
// Fields within every row follow the window's column order, so lines written
// with different segment orders still yield rows with one consistent layout.
func Project(window []models.Reading) Payload {
	p := Payload{
		Columns: []string{},
		Rows:    make([]models.Row, 0, len(window)),
	}
	index := make(map[string]int)

	for i := range window {
		row := ToRow(&window[i])
		for _, f := range row.Fields {
			if _, ok := index[f.Key]; !ok {
				index[f.Key] = len(p.Columns)
				p.Columns = append(p.Columns, f.Key)
			}
		}
		p.Rows = append(p.Rows, row)
	}

	for _, row := range p.Rows {
		slices.SortStableFunc(row.Fields, func(a, b models.Field) int {
			return cmp.Compare(index[a.Key], index[b.Key])
		})
	}
	return p
}

// ToRow projects a single reading. Each metric becomes a display field
// plus its parsed number when one was found.
func ToRow(r *models.Reading) models.Row {
	row := models.Row{
		Timestamp: r.Timestamp,
		Fields:    make([]models.Field, 0, len(r.Metrics)),
	}
	for _, m := range r.Metrics {
		f := models.Field{Key: m.Key, Display: m.Value.Display}
		if m.Value.Numeric != nil {
			n := *m.Value.Numeric
			f.Numeric = &n
		}
		row.Fields = append(row.Fields, f)
	}
	return row
}

// EmptyHTMLRow is written by WriteHTML when there is nothing to show.
const EmptyHTMLRow = "<tr><td colspan='2' style='text-align:center; color:#6c757d;'>No data available or unreadable log.</td></tr>"

// WriteHTML renders readings as table rows for embedding in a page:
// the timestamp cell, then "Label: value" pairs joined by " | ".
func WriteHTML(w io.Writer, readings []models.Reading) error {
	if len(readings) == 0 {
		_, err := io.WriteString(w, EmptyHTMLRow)
		return err
	}

	var b strings.Builder
	for _, r := range readings {
		values := make([]string, 0, len(r.Metrics))
		for _, m := range r.Metrics {
			values = append(values, html.EscapeString(m.Label+": "+m.Value.Display))
		}
		b.WriteString("<tr><td>")
		b.WriteString(html.EscapeString(r.Timestamp))
		b.WriteString("</td><td>")
		b.WriteString(strings.Join(values, " | "))
		b.WriteString("</td></tr>\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}
