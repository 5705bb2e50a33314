package aggregate

import (
	"math"
	"time"

	"github.com/afroash/station-monitor/internal/codec"
	"github.com/afroash/station-monitor/internal/models"
)

// Point is one plotted sample. Value is NaN when the row had no usable
// number, and Time is zero when its timestamp could not be parsed.
type Point struct {
	Time  time.Time
	Value float64
}

// Valid reports whether the point can be drawn.
func (p Point) Valid() bool {
	return !p.Time.IsZero() && !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0)
}

// Series is a metric's points, oldest first.
type Series []Point

// Latest returns the newest drawable point.
func (s Series) Latest() (Point, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Valid() {
			return s[i], true
		}
	}
	return Point{}, false
}

// BuildSeries takes at most limit of the newest rows (rows are newest
// first) and returns one oldest-first series per key. Every series has
// exactly one point per row considered, so index i of each series refers
// to the same row.
func BuildSeries(rows []models.Row, keys []string, limit int, loc *time.Location) map[string]Series {
	out := make(map[string]Series, len(keys))
	if limit < 0 {
		limit = 0
	}
	n := min(limit, len(rows))

	times := make([]time.Time, n)
	for i := 0; i < n; i++ {
		// rows[n-1] is the oldest considered row
		t, err := models.ParseTimestamp(rows[n-1-i].Timestamp, loc)
		if err == nil {
			times[i] = t
		}
	}

	for _, key := range keys {
		s := make(Series, n)
		for i := 0; i < n; i++ {
			p := Point{Time: times[i], Value: math.NaN()}
			if !p.Time.IsZero() {
				p.Value = Value(&rows[n-1-i], key)
			}
			s[i] = p
		}
		out[key] = s
	}
	return out
}

// Value returns the number behind key in row: the parsed number when
// present, else the first number in its display text, else NaN.
func Value(row *models.Row, key string) float64 {
	f, ok := row.Get(key)
	if !ok {
		return math.NaN()
	}
	if f.Numeric != nil {
		return *f.Numeric
	}
	if v, ok := codec.ExtractNumber(f.Display); ok {
		return v
	}
	return math.NaN()
}

// TrailingWindow returns the chart's time axis bounds: the span ending at
// now, regardless of where the data lies.
func TrailingWindow(now time.Time, span time.Duration) (time.Time, time.Time) {
	return now.Add(-span), now
}
