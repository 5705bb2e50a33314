package dashboard

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/afroash/station-monitor/internal/aggregate"
)

// Theme is the renderer's color palette.
type Theme struct {
	Title   lipgloss.Color
	Faint   lipgloss.Color
	Text    lipgloss.Color
	Border  lipgloss.Color
	Good    lipgloss.Color
	Warn    lipgloss.Color
	Bad     lipgloss.Color
	Spark   lipgloss.Color
	Heading lipgloss.Color
}

// DefaultTheme suits a dark terminal.
var DefaultTheme = Theme{
	Title:   lipgloss.Color("#7aa2f7"),
	Faint:   lipgloss.Color("#6c757d"),
	Text:    lipgloss.Color("#c0caf5"),
	Border:  lipgloss.Color("#3b4261"),
	Good:    lipgloss.Color("#9ece6a"),
	Warn:    lipgloss.Color("#e0af68"),
	Bad:     lipgloss.Color("#f7768e"),
	Spark:   lipgloss.Color("#7dcfff"),
	Heading: lipgloss.Color("#bb9af7"),
}

// sparkLevels are the block glyphs of a sparkline, lowest first.
var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\x1b[H\x1b[2J"

// TerminalRenderer draws snapshots as text frames.
type TerminalRenderer struct {
	out        io.Writer
	theme      Theme
	width      int
	clear      bool
	location   *time.Location
	tableRows  int
	chartSpan  time.Duration
	sparkWidth int
}

// RendererOptions configures a TerminalRenderer.
type RendererOptions struct {
	// Width is the frame width in cells.
	Width int
	// Clear redraws in place instead of scrolling.
	Clear     bool
	Location  *time.Location
	TableRows int
	ChartSpan time.Duration
}

// NewTerminalRenderer creates a renderer writing frames to out.
func NewTerminalRenderer(out io.Writer, opts RendererOptions) *TerminalRenderer {
	if opts.Width < 40 {
		opts.Width = 100
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &TerminalRenderer{
		out:        out,
		theme:      DefaultTheme,
		width:      opts.Width,
		clear:      opts.Clear,
		location:   opts.Location,
		tableRows:  opts.TableRows,
		chartSpan:  opts.ChartSpan,
		sparkWidth: opts.Width - 36,
	}
}

// Render writes a full frame for snap.
func (r *TerminalRenderer) Render(snap *aggregate.Snapshot) error {
	sections := []string{
		r.header(snap.GeneratedAt, r.status(snap)),
		r.table(snap),
	}
	for _, chart := range snap.Charts {
		sections = append(sections, r.chart(chart, snap.WindowStart, snap.WindowEnd))
	}
	sections = append(sections, r.indicators(snap))

	return r.write(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

// RenderError writes the error frame shown when a refresh fails.
func (r *TerminalRenderer) RenderError(err error, at time.Time) error {
	errStyle := lipgloss.NewStyle().Foreground(r.theme.Bad).Bold(true)
	detail := lipgloss.NewStyle().Foreground(r.theme.Faint)

	body := lipgloss.JoinVertical(lipgloss.Left,
		r.header(at, "Refresh failed at "+at.In(r.location).Format("15:04:05")),
		r.box(lipgloss.JoinVertical(lipgloss.Left,
			errStyle.Render("Failed to load data from server."),
			detail.Render(err.Error()),
		)),
	)
	return r.write(body)
}

func (r *TerminalRenderer) write(frame string) error {
	if r.clear {
		frame = clearScreen + frame
	}
	_, err := io.WriteString(r.out, frame+"\n")
	return err
}

func (r *TerminalRenderer) header(at time.Time, status string) string {
	title := lipgloss.NewStyle().Foreground(r.theme.Title).Bold(true).Render("Weather Station")
	sub := lipgloss.NewStyle().Foreground(r.theme.Faint).Render(status)
	return lipgloss.NewStyle().Width(r.width).MaxWidth(r.width).Render(title + "  " + sub)
}

func (r *TerminalRenderer) status(snap *aggregate.Snapshot) string {
	return fmt.Sprintf("Last updated: %s | Table: %d latest | Chart span: %s | Rows: %d",
		snap.GeneratedAt.In(r.location).Format("15:04:05"),
		r.tableRows,
		formatSpan(r.chartSpan),
		snap.RowCount)
}

func (r *TerminalRenderer) box(content string) string {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(r.theme.Border).
		Padding(0, 1).
		Width(r.width - 2).
		Render(content)
}

// table lists the newest rows side by side, one metric per line.
func (r *TerminalRenderer) table(snap *aggregate.Snapshot) string {
	if len(snap.Table) == 0 {
		return r.box(lipgloss.NewStyle().Foreground(r.theme.Faint).Render("No data"))
	}

	labelStyle := lipgloss.NewStyle().Foreground(r.theme.Heading).Width(12)
	headStyle := lipgloss.NewStyle().Foreground(r.theme.Title).Bold(true)
	cellWidth := (r.width - 18) / len(snap.Table)
	cell := lipgloss.NewStyle().Foreground(r.theme.Text).Width(cellWidth).MaxWidth(cellWidth)

	var lines []string
	head := labelStyle.Render("Time Stamp")
	for _, row := range snap.Table {
		head += headStyle.Width(cellWidth).MaxWidth(cellWidth).Render(row.Timestamp)
	}
	lines = append(lines, head)

	for _, col := range snap.Columns {
		line := labelStyle.Render(col)
		for i := range snap.Table {
			f, _ := snap.Table[i].Get(col)
			line += cell.Render(f.Display)
		}
		lines = append(lines, line)
	}
	return r.box(strings.Join(lines, "\n"))
}

func (r *TerminalRenderer) chart(chart aggregate.GroupSeries, start, end time.Time) string {
	title := lipgloss.NewStyle().Foreground(r.theme.Heading).Bold(true).Render(chart.Group.Name)
	spark := lipgloss.NewStyle().Foreground(r.theme.Spark)
	keyStyle := lipgloss.NewStyle().Foreground(r.theme.Text).Width(10)
	faint := lipgloss.NewStyle().Foreground(r.theme.Faint)

	lines := []string{title}
	for _, key := range chart.Group.Keys {
		series := chart.Series[key]
		buckets := Bucket(series, start, end, r.sparkWidth)
		line := keyStyle.Render(key) + spark.Render(Sparkline(buckets, chart.Group.ZeroBased))
		if p, ok := series.Latest(); ok {
			line += " " + fmt.Sprintf("%.2f", p.Value)
		} else {
			line += " " + faint.Render("--")
		}
		lines = append(lines, line)
	}
	axis := faint.Render(fmt.Sprintf("%10s%s … %s", "",
		start.In(r.location).Format("Jan 2 3:04 PM"),
		end.In(r.location).Format("Jan 2 3:04 PM")))
	lines = append(lines, axis)
	return r.box(strings.Join(lines, "\n"))
}

func (r *TerminalRenderer) indicators(snap *aggregate.Snapshot) string {
	label := lipgloss.NewStyle().Foreground(r.theme.Heading).Width(10)
	faint := lipgloss.NewStyle().Foreground(r.theme.Faint)

	wind := faint.Render("--")
	if h := snap.Compass; h != nil {
		wind = fmt.Sprintf("%.0f° %s", h.Degrees, h.Cardinal)
	}

	battery := faint.Render("--")
	if b := snap.Battery; b != nil {
		color := r.theme.Bad
		switch b.Band {
		case aggregate.BandFull:
			color = r.theme.Good
		case aggregate.BandMedium:
			color = r.theme.Warn
		}
		battery = lipgloss.NewStyle().Foreground(color).
			Render(fmt.Sprintf("%.2f V | %.0f%% (%s)", b.Volts, b.Percent, b.Band))
	}

	var edges []string
	for _, e := range snap.Flow.Edges {
		text := fmt.Sprintf("%s → %s", e.From, e.To)
		if e.Active {
			edges = append(edges, lipgloss.NewStyle().Foreground(r.theme.Good).
				Render(fmt.Sprintf("● %s %.3f W", text, e.Watts)))
		} else {
			edges = append(edges, faint.Render("○ "+text))
		}
	}

	return r.box(lipgloss.JoinVertical(lipgloss.Left,
		label.Render("Wind")+wind,
		label.Render("Battery")+battery,
		label.Render("Power")+strings.Join(edges, "   "),
	))
}

// Bucket spreads the valid points of s over n equal time slots between
// start and end and averages each slot. Slots without points are NaN.
func Bucket(s aggregate.Series, start, end time.Time, n int) []float64 {
	if n <= 0 {
		return nil
	}
	sums := make([]float64, n)
	counts := make([]int, n)
	span := end.Sub(start)

	for _, p := range s {
		if !p.Valid() || p.Time.Before(start) || p.Time.After(end) || span <= 0 {
			continue
		}
		i := int(float64(p.Time.Sub(start)) / float64(span) * float64(n))
		if i >= n {
			i = n - 1
		}
		sums[i] += p.Value
		counts[i]++
	}

	out := make([]float64, n)
	for i := range out {
		if counts[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sums[i] / float64(counts[i])
	}
	return out
}

// Sparkline renders bucket values as block glyphs scaled between the
// smallest and largest value (or zero when zeroBased). NaN buckets are
// drawn as gaps.
func Sparkline(values []float64, zeroBased bool) string {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if zeroBased && lo > 0 {
		lo = 0
	}

	var b strings.Builder
	for _, v := range values {
		if math.IsNaN(v) {
			b.WriteRune(' ')
			continue
		}
		level := 0
		if hi > lo {
			level = int((v - lo) / (hi - lo) * float64(len(sparkLevels)-1))
		}
		b.WriteRune(sparkLevels[level])
	}
	return b.String()
}

func formatSpan(d time.Duration) string {
	if d > 0 && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return d.String()
}
