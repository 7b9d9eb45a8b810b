package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg            *prometheus.Registry
	Runs           *prometheus.CounterVec
	RunDurationSec *prometheus.HistogramVec
	LastSuccess    prometheus.Gauge
	Products       *prometheus.CounterVec
	Rows           *prometheus.CounterVec
	Upserted       prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "catalogsync_runs_total"}, []string{"mode", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalogsync_run_duration_seconds",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
	}, []string{"mode"})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{Name: "catalogsync_last_success_timestamp_seconds"})
	products := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "catalogsync_products_total"}, []string{"action", "result"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "catalogsync_rows_total"}, []string{"outcome"})
	upserted := prometheus.NewCounter(prometheus.CounterOpts{Name: "catalogsync_products_upserted_total"})

	r.MustRegister(runs, duration, lastSuccess, products, rows, upserted)
	return &Registry{
		reg:            r,
		Runs:           runs,
		RunDurationSec: duration,
		LastSuccess:    lastSuccess,
		Products:       products,
		Rows:           rows,
		Upserted:       upserted,
	}
}

// ObserveRun records a finished reconciliation run.
func (r *Registry) ObserveRun(mode, status string, took time.Duration) {
	r.Runs.WithLabelValues(mode, status).Inc()
	r.RunDurationSec.WithLabelValues(mode).Observe(took.Seconds())
	if status != "FAILED" {
		r.LastSuccess.SetToCurrentTime()
	}
}

func (r *Registry) ObserveProduct(action, result string) {
	r.Products.WithLabelValues(action, result).Inc()
}

// ObserveRows records one parsed sheet.
func (r *Registry) ObserveRows(accepted, skipped, rejected int) {
	r.Rows.WithLabelValues("accepted").Add(float64(accepted))
	r.Rows.WithLabelValues("skipped").Add(float64(skipped))
	r.Rows.WithLabelValues("rejected").Add(float64(rejected))
}

func (r *Registry) ObserveUpserted(n int) {
	r.Upserted.Add(float64(n))
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
