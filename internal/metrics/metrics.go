// Package metrics exposes Prometheus metrics and a health endpoint for
// the chart engine.
package metrics

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	BarsTotal        *prometheus.CounterVec // labels: symbol
	FetchErrors      prometheus.Counter
	StreamReconnects prometheus.Counter
	Hydrations       prometheus.Counter
	AlertsFired      *prometheus.CounterVec // labels: symbol
	DeliveryFailures prometheus.Counter
	EvalDur          prometheus.Histogram
	WSClients        prometheus.Gauge
	DragUpdates      prometheus.Counter
}

// New registers and returns all engine metrics.
func New() *Metrics {
	m := &Metrics{
		BarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fibwatch_bars_total",
			Help: "Total bar updates applied to chart buffers",
		}, []string{"symbol"}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fibwatch_fetch_errors_total",
			Help: "Historical kline fetches that failed",
		}),
		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fibwatch_stream_reconnects_total",
			Help: "Live stream reconnection attempts",
		}),
		Hydrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fibwatch_level_hydrations_total",
			Help: "Level price write-backs triggered by window changes",
		}),
		AlertsFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fibwatch_alerts_fired_total",
			Help: "Alert events emitted by the evaluator",
		}, []string{"symbol"}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fibwatch_alert_delivery_failures_total",
			Help: "Alert deliveries that failed at the sink",
		}),
		EvalDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fibwatch_eval_duration_seconds",
			Help:    "Alert evaluation latency per bar update",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fibwatch_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		DragUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fibwatch_drag_updates_total",
			Help: "Pointer-move snap writes during level drags",
		}),
	}

	prometheus.MustRegister(
		m.BarsTotal, m.FetchErrors, m.StreamReconnects, m.Hydrations,
		m.AlertsFired, m.DeliveryFailures, m.EvalDur, m.WSClients, m.DragUpdates,
	)
	return m
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	srv *http.Server
}

// NewServer creates the metrics server.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	return &Server{srv: &http.Server{Addr: addr, Handler: mux}}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
