package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"

	"github.com/afroash/station-monitor/internal/codec"
)

// Options configures the HTTP surface
type Options struct {
	AuthToken      string
	AllowedOrigins []string
	MaxRows        int
	Location       *time.Location
}

// Server wires the ingest, query and stream handlers onto one router
type Server struct {
	Ingest  *IngestHandler
	API     *APIHandler
	Stream  *Handler
	Metrics *Metrics

	router chi.Router
	logger zerolog.Logger
}

// New builds the station server around store
func New(store ReadingStore, schema *codec.Schema, opts Options, logger zerolog.Logger) *Server {
	metrics := NewMetrics()
	s := &Server{
		Ingest:  NewIngestHandler(store, schema, opts.Location, metrics, logger),
		API:     NewAPIHandler(store, opts.MaxRows, metrics, logger),
		Stream:  NewHandler(opts.AuthToken, store, metrics, logger, opts.AllowedOrigins...),
		Metrics: metrics,
		logger:  logger,
	}
	s.API.SetStreamCounter(s.Stream.ActiveCount)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// Sensor firmware posts to the legacy paths
	for _, path := range []string{"/api/ingest", "/sendData.php"} {
		r.Method(http.MethodGet, path, s.Ingest)
		r.Method(http.MethodPost, path, s.Ingest)
	}

	sensorData := gzhttp.GzipHandler(http.HandlerFunc(s.API.HandleSensorData))
	r.Method(http.MethodGet, "/api/sensor-data", sensorData)
	r.Method(http.MethodGet, "/sensorData.php", sensorData)

	r.Get("/sensor-stream", s.Stream.ServeHTTP)
	r.Get("/api/stats", s.API.HandleStats)
	r.Get("/health", s.API.HandleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.router = r
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each request once it completes
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("Request served")
		}()
		next.ServeHTTP(ww, r)
	})
}
