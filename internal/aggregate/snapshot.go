package aggregate

import (
	"time"

	"github.com/afroash/station-monitor/internal/models"
)

// GroupSeries is one chart: a group's series over the trailing window.
type GroupSeries struct {
	Group  Group
	Series map[string]Series
}

// Snapshot is everything one dashboard refresh renders.
type Snapshot struct {
	GeneratedAt time.Time

	// Table holds the newest rows, Columns their keys in first-seen order.
	Table   []models.Row
	Columns []string

	Charts      []GroupSeries
	WindowStart time.Time
	WindowEnd   time.Time

	Compass *Heading
	Battery *BatteryStatus
	Flow    Flow

	// RowCount is the number of rows the refresh received.
	RowCount int
}

// Latest returns the newest row, or nil when there is none.
func (s *Snapshot) Latest() *models.Row {
	if len(s.Table) == 0 {
		return nil
	}
	return &s.Table[0]
}

// Build aggregates rows (newest first) into a Snapshot as of now.
func Build(rows []models.Row, cfg Config, now time.Time) *Snapshot {
	cfg.ApplyDefaults()

	table := rows[:min(cfg.TableRows, len(rows))]
	snap := &Snapshot{
		GeneratedAt: now,
		Table:       table,
		Columns:     columns(table),
		Charts:      make([]GroupSeries, 0, len(cfg.Groups)),
		RowCount:    len(rows),
	}
	snap.WindowStart, snap.WindowEnd = TrailingWindow(now, cfg.Span)

	for _, g := range cfg.Groups {
		snap.Charts = append(snap.Charts, GroupSeries{
			Group:  g,
			Series: BuildSeries(rows, g.Keys, cfg.ChartRows, cfg.Location),
		})
	}

	var latest *models.Row
	if len(rows) > 0 {
		latest = &rows[0]
	}
	snap.Compass = Compass(latest, cfg.CompassKey)
	snap.Battery = Battery(latest, cfg.Battery)
	snap.Flow = PowerFlow(latest, cfg.Flow)

	return snap
}

func columns(rows []models.Row) []string {
	cols := []string{}
	seen := make(map[string]bool)
	for i := range rows {
		for _, f := range rows[i].Fields {
			if !seen[f.Key] {
				seen[f.Key] = true
				cols = append(cols, f.Key)
			}
		}
	}
	return cols
}
