package aggregate

import (
	"math"

	"github.com/afroash/station-monitor/internal/models"
)

// Heading is the latest wind direction.
type Heading struct {
	// Degrees is the value as measured, not normalised.
	Degrees  float64 `json:"degrees"`
	Cardinal string  `json:"cardinal"`
}

var cardinals = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// Cardinal returns the 16-point compass label for degrees.
func Cardinal(degrees float64) string {
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}
	return cardinals[int(math.Floor(d/22.5+0.5))%16]
}

// Compass reads the wind direction from row. It returns nil when the
// metric is missing or not a finite number.
func Compass(row *models.Row, key string) *Heading {
	if row == nil {
		return nil
	}
	v := Value(row, key)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &Heading{Degrees: v, Cardinal: Cardinal(v)}
}

// Battery bands
const (
	BandFull   = "full"
	BandMedium = "medium"
	BandLow    = "low"
)

// BatteryStatus is the charge estimate derived from a voltage.
type BatteryStatus struct {
	Volts   float64 `json:"volts"`
	Percent float64 `json:"percent"`
	Band    string  `json:"band"`
}

// Battery maps the policy's voltage metric in row onto 0..100 percent
// linearly between EmptyVolts and FullVolts. It returns nil when the
// voltage is missing or not finite.
func Battery(row *models.Row, policy BatteryPolicy) *BatteryStatus {
	if row == nil || policy.FullVolts <= policy.EmptyVolts {
		return nil
	}
	v := Value(row, policy.Key)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}

	percent := (v - policy.EmptyVolts) / (policy.FullVolts - policy.EmptyVolts) * 100
	percent = math.Max(0, math.Min(100, percent))

	band := BandLow
	switch {
	case percent > policy.FullAbove:
		band = BandFull
	case percent > policy.MediumAbove:
		band = BandMedium
	}
	return &BatteryStatus{Volts: v, Percent: percent, Band: band}
}

// Power-flow nodes
const (
	NodeSource     = "source"
	NodeController = "controller"
	NodeBattery    = "battery"
	NodeLoad       = "load"
)

// Edge is one arrow of the power-flow diagram.
type Edge struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Key    string  `json:"key"`
	Watts  float64 `json:"watts"`
	Active bool    `json:"active"`
}

// Flow is the power-flow diagram: solar into the controller, battery into
// the load and controller into the load, in that order.
type Flow struct {
	Edges []Edge `json:"edges"`
}

// PowerFlow marks an edge active when its power reading is finite and
// strictly positive. Missing, zero, negative and non-finite readings leave
// the edge inactive.
func PowerFlow(row *models.Row, keys FlowKeys) Flow {
	specs := []Edge{
		{From: NodeSource, To: NodeController, Key: keys.Solar},
		{From: NodeBattery, To: NodeLoad, Key: keys.Battery},
		{From: NodeController, To: NodeLoad, Key: keys.System},
	}

	flow := Flow{Edges: make([]Edge, 0, len(specs))}
	for _, e := range specs {
		e.Watts = math.NaN()
		if row != nil {
			e.Watts = Value(row, e.Key)
		}
		e.Active = !math.IsNaN(e.Watts) && !math.IsInf(e.Watts, 0) && e.Watts > 0
		if !e.Active && (math.IsNaN(e.Watts) || math.IsInf(e.Watts, 0)) {
			// Keep the snapshot JSON encodable
			e.Watts = 0
		}
		flow.Edges = append(flow.Edges, e)
	}
	return flow
}

// Active returns the edges currently carrying power.
func (f Flow) Active() []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.Active {
			out = append(out, e)
		}
	}
	return out
}
