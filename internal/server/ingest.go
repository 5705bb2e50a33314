package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/afroash/station-monitor/internal/codec"
	"github.com/afroash/station-monitor/internal/models"
)

// IngestHandler accepts one complete reading as query or form parameters
// named by metric key and appends it to the log.
type IngestHandler struct {
	store    ReadingStore
	schema   *codec.Schema
	location *time.Location
	metrics  *Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// IngestResponse is the success body
type IngestResponse struct {
	OK        bool              `json:"ok"`
	Message   string            `json:"message"`
	ID        string            `json:"id"`
	Timestamp string            `json:"timestamp"`
	Data      map[string]string `json:"data"`
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(store ReadingStore, schema *codec.Schema, loc *time.Location, metrics *Metrics, logger zerolog.Logger) *IngestHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &IngestHandler{
		store:    store,
		schema:   schema,
		location: loc,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// ServeHTTP validates every parameter, reporting all problems at once, and
// appends the reading stamped with the server's clock.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"ok":     false,
			"errors": []string{"Malformed request: " + err.Error()},
		})
		return
	}

	lookup := func(key string) (string, bool) {
		vs, ok := r.Form[key]
		if !ok || len(vs) == 0 {
			return "", false
		}
		return vs[0], true
	}

	values, err := h.schema.ParseParams(lookup)
	if err != nil {
		var verr *codec.ValidationError
		if !errors.As(err, &verr) {
			verr = &codec.ValidationError{Problems: []string{err.Error()}}
		}
		h.metrics.Ingested.WithLabelValues(SourceHTTP, ResultRejected).Inc()
		h.logger.Warn().
			Str("remote", r.RemoteAddr).
			Strs("errors", verr.Problems).
			Msg("Reading rejected")
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"ok":     false,
			"errors": verr.Problems,
		})
		return
	}

	sample := &models.Sample{
		SensorID:  r.Form.Get("sensor_id"),
		Timestamp: h.now(),
		Values:    values,
	}
	if _, err := h.store.AppendSample(sample); err != nil {
		h.metrics.Ingested.WithLabelValues(SourceHTTP, ResultFailed).Inc()
		h.metrics.AppendFailures.Inc()
		h.logger.Error().Err(err).Msg("Failed to append reading")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"ok":    false,
			"error": "Failed to write to log file",
		})
		return
	}

	data := make(map[string]string, len(values))
	for _, f := range h.schema.Fields() {
		data[f.Key] = f.Format(values[f.Key])
	}

	h.metrics.Ingested.WithLabelValues(SourceHTTP, ResultStored).Inc()
	resp := IngestResponse{
		OK:        true,
		Message:   "Data received and logged",
		ID:        uuid.NewString(),
		Timestamp: models.FormatTimestamp(sample.Timestamp, h.location),
		Data:      data,
	}
	h.logger.Info().Str("id", resp.ID).Str("timestamp", resp.Timestamp).Msg("Reading stored")
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes v as the JSON response body
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// isValidation reports whether err carries rejected input rather than a
// write failure
func isValidation(err error) bool {
	var verr *codec.ValidationError
	return errors.As(err, &verr)
}
