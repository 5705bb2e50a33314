package models

import "time"

// StationInfo describes the uplink process and the sensor unit behind it.
type StationInfo struct {
	ID        string    `json:"id"`
	Location  string    `json:"location"`
	Unit      string    `json:"unit"`
	Version   string    `json:"version"`
	StartTime time.Time `json:"start_time"`
}

// Uptime returns the duration since the uplink started
func (s *StationInfo) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// NewStationInfo creates a StationInfo with the current time as start time
func NewStationInfo(id, location, unit, version string) *StationInfo {
	return &StationInfo{
		ID:        id,
		Location:  location,
		Unit:      unit,
		Version:   version,
		StartTime: time.Now(),
	}
}
