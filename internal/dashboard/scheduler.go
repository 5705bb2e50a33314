// Package dashboard periodically pulls the newest rows from the station
// server, aggregates them and renders the result.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/station-monitor/internal/aggregate"
	"github.com/afroash/station-monitor/internal/models"
)

// Fetcher retrieves up to max rows, newest first.
type Fetcher interface {
	Fetch(ctx context.Context, max int) ([]models.Row, error)
}

// Renderer draws a refresh result or the error state of a failed refresh.
type Renderer interface {
	Render(snap *aggregate.Snapshot) error
	RenderError(err error, at time.Time) error
}

// SchedulerConfig controls the refresh cadence.
type SchedulerConfig struct {
	Interval     time.Duration
	FetchTimeout time.Duration
	Aggregate    aggregate.Config
}

// DefaultSchedulerConfig refreshes every 10s with an 8s fetch budget.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:     10 * time.Second,
		FetchTimeout: 8 * time.Second,
		Aggregate:    aggregate.DefaultConfig(),
	}
}

// Scheduler runs refresh cycles on a fixed period. Only one cycle runs at a
// time; a slow cycle delays the next tick instead of overlapping it.
type Scheduler struct {
	fetcher  Fetcher
	renderer Renderer
	cfg      SchedulerConfig
	logger   zerolog.Logger
	now      func() time.Time

	cycleMu sync.Mutex

	// Stats
	mu          sync.RWMutex
	cycles      int64
	failures    int64
	lastSuccess time.Time
	lastError   string
	lastErrorAt time.Time
	lastRows    int
}

// SchedulerStats contains refresh counters
type SchedulerStats struct {
	Cycles      int64     `json:"cycles"`
	Failures    int64     `json:"failures"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
	LastRows    int       `json:"last_rows"`
}

// NewScheduler creates a scheduler. Zero durations fall back to the defaults.
func NewScheduler(fetcher Fetcher, renderer Renderer, cfg SchedulerConfig, logger zerolog.Logger) *Scheduler {
	d := DefaultSchedulerConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = d.FetchTimeout
	}
	cfg.Aggregate.ApplyDefaults()

	return &Scheduler{
		fetcher:  fetcher,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run performs one cycle immediately and then one per interval until ctx
// is cancelled. Failed cycles are rendered and logged; they never stop the
// schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.cfg.Interval).
		Dur("fetch_timeout", s.cfg.FetchTimeout).
		Int("rows", s.cfg.Aggregate.FetchRows()).
		Msg("Dashboard refresh started")

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Dashboard refresh stopped")
			return ctx.Err()
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single fetch, aggregate and render cycle.
func (s *Scheduler) RunOnce(ctx context.Context) (err error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	started := s.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
			s.fail(err, started)
		}
	}()

	rows, err := s.fetch(ctx)
	if err != nil {
		s.fail(err, started)
		return err
	}

	snap := aggregate.Build(rows, s.cfg.Aggregate, s.now())
	if err := s.renderer.Render(snap); err != nil {
		err = fmt.Errorf("render failed: %w", err)
		s.fail(err, started)
		return err
	}

	s.mu.Lock()
	s.cycles++
	s.lastSuccess = started
	s.lastRows = len(rows)
	s.mu.Unlock()

	s.logger.Debug().
		Int("rows", len(rows)).
		Dur("took", s.now().Sub(started)).
		Msg("Dashboard refreshed")
	return nil
}

func (s *Scheduler) fetch(ctx context.Context) ([]models.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	rows, err := s.fetcher.Fetch(ctx, s.cfg.Aggregate.FetchRows())
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	return rows, nil
}

// fail records a failed cycle and shows it
func (s *Scheduler) fail(err error, at time.Time) {
	s.mu.Lock()
	s.cycles++
	s.failures++
	s.lastError = err.Error()
	s.lastErrorAt = at
	s.mu.Unlock()

	s.logger.Error().Err(err).Msg("Dashboard refresh failed")

	if rerr := s.renderer.RenderError(err, at); rerr != nil {
		s.logger.Error().Err(rerr).Msg("Failed to render error state")
	}
}

// Stats returns refresh counters
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return SchedulerStats{
		Cycles:      s.cycles,
		Failures:    s.failures,
		LastSuccess: s.lastSuccess,
		LastError:   s.lastError,
		LastErrorAt: s.lastErrorAt,
		LastRows:    s.lastRows,
	}
}
