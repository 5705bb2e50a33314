package sensor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/station-monitor/internal/models"
)

// Reader orchestrates periodic sensor readings
type Reader struct {
	unit        Unit
	stationInfo *models.StationInfo
	interval    time.Duration
	logger      zerolog.Logger
	samples     chan *models.Sample
}

// NewReader creates a new sensor reader
func NewReader(unit Unit, info *models.StationInfo, interval time.Duration, logger zerolog.Logger) *Reader {
	return &Reader{
		unit:        unit,
		stationInfo: info,
		interval:    interval,
		logger:      logger,
		samples:     make(chan *models.Sample, 10),
	}
}

// Start begins periodic reading from the unit
// Runs until context is cancelled
func (r *Reader) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.readAndPublish(ctx)
		}
	}
}

// ReadOnce performs a single reading
func (r *Reader) ReadOnce() (*models.Sample, error) {
	values, err := r.unit.Sample()
	if err != nil {
		return nil, err
	}
	return models.NewSample(r.stationInfo.ID, values), nil
}

// readAndPublish performs a read and publishes to the channel
func (r *Reader) readAndPublish(ctx context.Context) {
	sample, err := r.ReadOnce()
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to read from sensor unit")
		return
	}
	select {
	case r.samples <- sample:
		r.logger.Debug().Msgf("read from sensor unit: %s", sample.String())
	case <-ctx.Done():
	}
}

// Samples returns the channel where samples are published
func (r *Reader) Samples() <-chan *models.Sample {
	return r.samples
}

// Close stops the reader and releases the unit
func (r *Reader) Close() error {
	return r.unit.Close()
}
