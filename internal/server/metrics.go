package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingestion sources and results used as metric labels
const (
	SourceHTTP      = "http"
	SourceWebSocket = "websocket"

	ResultStored   = "stored"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Metrics holds the server's Prometheus collectors. Each instance owns its
// registry so several servers can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	Ingested       *prometheus.CounterVec
	AppendFailures prometheus.Counter
	QueryRows      prometheus.Histogram
	ReadDuration   prometheus.Histogram
	ActiveStreams  prometheus.Gauge
	StreamMessages *prometheus.CounterVec
}

// NewMetrics registers the station collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Ingested: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station",
			Name:      "readings_ingested_total",
			Help:      "Readings received, by source and result.",
		}, []string{"source", "result"}),
		AppendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "station",
			Name:      "log_append_failures_total",
			Help:      "Failed appends to the reading log.",
		}),
		QueryRows: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "station",
			Name:      "query_rows",
			Help:      "Rows returned per sensor-data query.",
			Buckets:   []float64{1, 3, 10, 100, 1000, 6000, 10000},
		}),
		ReadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "station",
			Name:      "log_read_seconds",
			Help:      "Time spent reading the newest rows from the log.",
			Buckets:   prometheus.DefBuckets,
		}),
		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "station",
			Name:      "active_streams",
			Help:      "Connected websocket uplinks.",
		}),
		StreamMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "station",
			Name:      "stream_messages_total",
			Help:      "Websocket messages received, by type.",
		}, []string{"type"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
