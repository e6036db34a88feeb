// Package metrics collects and exposes Prometheus metrics for the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records pipeline and credential activity.
type Collector struct {
	cycles       *prometheus.CounterVec
	stageLatency *prometheus.HistogramVec
	skipped      prometheus.Counter
	repairs      *prometheus.CounterVec
	refreshes    *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrag_cycles_total",
			Help: "Question cycles by outcome.",
		}, []string{"outcome"}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mailrag_stage_latency_seconds",
			Help:    "Latency of each pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailrag_fetch_skipped_total",
			Help: "Messages left out because their fetch failed.",
		}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrag_answer_repair_total",
			Help: "Structured answers by the repair stage that produced them.",
		}, []string{"stage"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailrag_credential_refresh_total",
			Help: "Silent credential refreshes by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.cycles,
		c.stageLatency,
		c.skipped,
		c.repairs,
		c.refreshes,
	)

	return c
}

// RecordCycle counts one finished cycle.
func (c *Collector) RecordCycle(outcome string) {
	c.cycles.WithLabelValues(outcome).Inc()
}

// RecordStage observes how long a stage took.
func (c *Collector) RecordStage(stage string, d time.Duration) {
	c.stageLatency.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordSkipped counts skipped fetches.
func (c *Collector) RecordSkipped(n int) {
	c.skipped.Add(float64(n))
}

// RecordRepair counts the repair stage of a synthesized answer.
func (c *Collector) RecordRepair(stage string) {
	c.repairs.WithLabelValues(stage).Inc()
}

// RecordRefresh counts a silent credential refresh.
func (c *Collector) RecordRefresh(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	c.refreshes.WithLabelValues(result).Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
