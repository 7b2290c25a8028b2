package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// InputStats is a snapshot of input-side counters, supplied by the owner.
type InputStats struct {
	BytesIn  uint64
	Frames   uint64
	Discards uint64
}

// Metrics holds all application metrics
type Metrics struct {
	// Fan-out counters
	FramesPublished     atomic.Uint64
	ClientFramesSent    atomic.Uint64
	ClientFramesDropped atomic.Uint64
	ClientWriteErrors   atomic.Uint64
	BytesOut            atomic.Uint64

	// Client tracking
	ActiveClients atomic.Uint64
	TotalClients  atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a Metrics instance with Prometheus collectors. input supplies
// the live segmenter counters; it may be nil.
func New(input func() InputStats) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics(input)

	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics(input func() InputStats) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streameye_frames_published_total",
			Help: "Total frames published to the shared frame slot",
		},
		func() float64 { return float64(m.FramesPublished.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streameye_client_frames_sent_total",
			Help: "Total multipart parts written to clients",
		},
		func() float64 { return float64(m.ClientFramesSent.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streameye_client_frames_dropped_total",
			Help: "Total frames skipped by clients slower than the producer",
		},
		func() float64 { return float64(m.ClientFramesDropped.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streameye_client_write_errors_total",
			Help: "Total client socket write failures",
		},
		func() float64 { return float64(m.ClientWriteErrors.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streameye_bytes_out_total",
			Help: "Total frame payload bytes written to clients",
		},
		func() float64 { return float64(m.BytesOut.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streameye_active_clients",
			Help: "Number of connected streaming clients",
		},
		func() float64 { return float64(m.ActiveClients.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streameye_total_clients",
			Help: "Total clients accepted since startup",
		},
		func() float64 { return float64(m.TotalClients.Load()) },
	))

	if input == nil {
		return
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streameye_input_bytes_total",
			Help: "Total bytes read from the input stream",
		},
		func() float64 { return float64(input().BytesIn) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streameye_input_frames_total",
			Help: "Total frames segmented from the input stream",
		},
		func() float64 { return float64(input().Frames) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "streameye_input_discards_total",
			Help: "Total oversized accumulator discards",
		},
		func() float64 { return float64(input().Discards) },
	))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
