package sensor

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Unit is the measurement hardware behind the uplink
type Unit interface {
	// Sample performs a single reading of every metric the unit carries,
	// keyed by metric key
	Sample() (map[string]float64, error)

	// Close releases hardware resources
	Close() error
}

// Simulator produces a plausible full station reading without hardware.
// Temperature follows a daily curve, wind direction and speed random-walk,
// and solar output follows the sun between 06:00 and 18:00.
type Simulator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	now    func() time.Time
	wdir   float64
	wspd   float64
	batt   float64
	closed bool
}

// NewSimulator creates a simulator seeded with seed
func NewSimulator(seed int64) *Simulator {
	return &Simulator{
		rng:  rand.New(rand.NewSource(seed)),
		now:  time.Now,
		wdir: 180,
		wspd: 3,
		batt: 3.9,
	}
}

// Sample returns the next simulated reading
func (s *Simulator) Sample() (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("simulator is closed")
	}

	t := s.now()
	hour := float64(t.Hour()) + float64(t.Minute())/60

	// Coldest around 04:00, warmest around 16:00.
	temp := 18 + 7*math.Sin((hour-10)/24*2*math.Pi) + s.jitter(0.3)
	humid := clamp(60-1.5*(temp-18)+s.jitter(2), 5, 100)

	s.wdir = math.Mod(s.wdir+s.jitter(15)+360, 360)
	s.wspd = clamp(s.wspd+s.jitter(0.5), 0, 25)

	sun := math.Max(0, math.Sin((hour-6)/12*math.Pi))
	solvolt := 0.0
	solcurr := 0.0
	if sun > 0 {
		solvolt = 17 + 3*sun
		solcurr = 600 * sun
	}
	solpwr := solvolt * solcurr / 1000

	syscurr := 180 + s.jitter(20)
	sysvolt := 5 + s.jitter(0.05)
	syspwr := sysvolt * syscurr / 1000

	// Battery charges on surplus and discharges otherwise.
	batpwr := solpwr - syspwr
	s.batt = clamp(s.batt+batpwr*0.001, 2.7, 4.5)
	batcurr := batpwr / s.batt * 1000

	raindet := 0.0
	rainamt := 0.0
	if humid > 85 && s.rng.Float64() < 0.3 {
		raindet = 1
		rainamt = s.rng.Float64() * 2
	}

	return map[string]float64{
		"temp":    temp,
		"humid":   humid,
		"press":   1013 + s.jitter(4),
		"gas":     clamp(120+s.jitter(10), 1, 500),
		"uv":      11 * sun,
		"wspd":    s.wspd,
		"wdir":    s.wdir,
		"raindet": raindet,
		"rainamt": rainamt,
		"solvolt": solvolt,
		"solcurr": solcurr,
		"solpwr":  solpwr,
		"batvolt": s.batt,
		"batcurr": batcurr,
		"batpwr":  batpwr,
		"sysvolt": sysvolt,
		"syscurr": syscurr,
		"syspwr":  syspwr,
	}, nil
}

// Close stops the simulator; further samples fail
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// jitter returns a uniform value in [-amp, amp)
func (s *Simulator) jitter(amp float64) float64 {
	return (s.rng.Float64()*2 - 1) * amp
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// NewUnit returns the unit named by kind
func NewUnit(kind string) (Unit, error) {
	switch kind {
	case "simulator", "":
		return NewSimulator(time.Now().UnixNano()), nil
	default:
		return nil, fmt.Errorf("unknown sensor unit %q", kind)
	}
}
