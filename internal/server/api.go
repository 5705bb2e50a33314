package server

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/station-monitor/internal/projector"
	"github.com/afroash/station-monitor/internal/storage"
)

// DefaultQueryRows is returned when the max parameter is absent or invalid
const DefaultQueryRows = 10

// APIHandler serves the read side of the reading log
type APIHandler struct {
	store   ReadingStore
	maxRows int
	metrics *Metrics
	streams func() int
	started time.Time
	logger  zerolog.Logger
}

// NewAPIHandler creates a new API handler. maxRows caps the max parameter.
func NewAPIHandler(store ReadingStore, maxRows int, metrics *Metrics, logger zerolog.Logger) *APIHandler {
	if maxRows < 1 {
		maxRows = DefaultQueryRows
	}
	return &APIHandler{
		store:   store,
		maxRows: maxRows,
		metrics: metrics,
		streams: func() int { return 0 },
		started: time.Now(),
		logger:  logger,
	}
}

// SetStreamCounter reports connected uplinks in the stats response
func (api *APIHandler) SetStreamCounter(fn func() int) {
	if fn != nil {
		api.streams = fn
	}
}

// HandleSensorData returns the newest readings as JSON rows or HTML table rows
func (api *APIHandler) HandleSensorData(w http.ResponseWriter, r *http.Request) {
	limit := api.parseMax(r.URL.Query().Get("max"))
	format := strings.ToLower(r.URL.Query().Get("format"))

	start := time.Now()
	readings := api.store.ReadLast(limit)
	api.metrics.ReadDuration.Observe(time.Since(start).Seconds())
	api.metrics.QueryRows.Observe(float64(len(readings)))

	h := w.Header()
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")

	if format == "html" {
		h.Set("Content-Type", "text/html; charset=utf-8")
		if err := projector.WriteHTML(w, readings); err != nil {
			api.logger.Warn().Err(err).Msg("Failed to write html rows")
		}
		return
	}

	payload := projector.Project(readings)
	api.logger.Debug().Int("max", limit).Int("rows", len(payload.Rows)).Msg("Sensor data served")
	writeJSON(w, http.StatusOK, payload.Rows)
}

// parseMax applies the default, the minimum of one and the configured cap
func (api *APIHandler) parseMax(raw string) int {
	limit := DefaultQueryRows
	if raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > api.maxRows {
		limit = api.maxRows
	}
	return limit
}

// StatsResponse is the body of the stats endpoint
type StatsResponse struct {
	Store         storage.StoreStats `json:"store"`
	ActiveStreams int                `json:"active_streams"`
	Uptime        string             `json:"uptime"`
	PID           int                `json:"pid"`
}

// HandleStats returns log statistics and process counters
func (api *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := api.store.Stat()
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to stat reading log")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"ok":    false,
			"error": "Failed to read log statistics",
		})
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Store:         stats,
		ActiveStreams: api.streams(),
		Uptime:        time.Since(api.started).Round(time.Second).String(),
		PID:           os.Getpid(),
	})
}

// HandleHealth reports liveness
func (api *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
