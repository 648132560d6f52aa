package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes collection metrics.
type Collector struct {
	registry *prometheus.Registry

	itemsTotal      *prometheus.CounterVec
	requestsTotal   prometheus.Counter
	barsTotal       prometheus.Counter
	bisectionsTotal prometheus.Counter
	restartsTotal   prometheus.Counter
	itemDuration    prometheus.Histogram
}

// New creates a metrics collector on its own registry so repeated
// construction in tests never panics on duplicate registration.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collect_items_total",
				Help: "Work items processed, by outcome",
			},
			[]string{"status"},
		),
		requestsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "collect_provider_requests_total",
				Help: "Outbound provider chunk requests",
			},
		),
		barsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "collect_bars_total",
				Help: "Bars written to item artifacts",
			},
		),
		bisectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "collect_bisections_total",
				Help: "Range bisections triggered by degraded responses",
			},
		),
		restartsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "watch_restarts_total",
				Help: "Child restarts performed by the supervisor",
			},
		),
		itemDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "collect_item_duration_seconds",
				Help:    "Time taken to collect one item",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
	}

	c.registry.MustRegister(c.itemsTotal)
	c.registry.MustRegister(c.requestsTotal)
	c.registry.MustRegister(c.barsTotal)
	c.registry.MustRegister(c.bisectionsTotal)
	c.registry.MustRegister(c.restartsTotal)
	c.registry.MustRegister(c.itemDuration)

	return c
}

// IncSaved records a completed item and its row count.
func (c *Collector) IncSaved(rows int) {
	c.itemsTotal.WithLabelValues("saved").Inc()
	c.barsTotal.Add(float64(rows))
}

// IncSkipped records an idempotent skip.
func (c *Collector) IncSkipped() {
	c.itemsTotal.WithLabelValues("skipped").Inc()
}

// IncEmpty records an item that yielded no data after full fallback.
func (c *Collector) IncEmpty() {
	c.itemsTotal.WithLabelValues("empty").Inc()
}

// IncFailed records an item whose collection raised an error.
func (c *Collector) IncFailed() {
	c.itemsTotal.WithLabelValues("failed").Inc()
}

// IncRequest records one outbound provider request.
func (c *Collector) IncRequest() {
	c.requestsTotal.Inc()
}

// IncBisection records one range split.
func (c *Collector) IncBisection() {
	c.bisectionsTotal.Inc()
}

// IncRestart records one supervisor kill-and-restart cycle.
func (c *Collector) IncRestart() {
	c.restartsTotal.Inc()
}

// ObserveItemDuration observes how long one item took end to end.
func (c *Collector) ObserveItemDuration(d time.Duration) {
	c.itemDuration.Observe(d.Seconds())
}

// StartServer starts the metrics HTTP server.
func (c *Collector) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
