package server

import (
	"github.com/afroash/station-monitor/internal/models"
	"github.com/afroash/station-monitor/internal/storage"
)

// ReadingStore is the reading log the server appends to and queries.
// storage.LogStore implements this interface.
type ReadingStore interface {
	// AppendSample encodes and appends one complete sample, returning the line
	AppendSample(sample *models.Sample) (string, error)

	// ReadLast returns up to limit of the newest readings, newest first
	ReadLast(limit int) []models.Reading

	// Stat returns log file statistics
	Stat() (storage.StoreStats, error)
}
