// Package metrics exposes engine activity as Prometheus series.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/siteqa/siteqa/internal/domain/run"
)

const namespace = "siteqa"

// Collector owns a private registry with the siteqa series.
type Collector struct {
	registry *prometheus.Registry

	runsStarted    prometheus.Counter
	runsFinished   *prometheus.CounterVec
	runsInFlight   prometheus.Gauge
	runScore       prometheus.Histogram
	runDuration    prometheus.Histogram
	checkDuration  *prometheus.HistogramVec
	checkStatus    *prometheus.CounterVec
	blockedOrigins *prometheus.CounterVec
}

// NewCollector builds the collector. Runtime metrics add the Go and process
// collectors to the registry.
func NewCollector(enableRuntimeMetrics bool) *Collector {
	reg := prometheus.NewRegistry()
	if enableRuntimeMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg.MustRegister(collectors.NewGoCollector())
	}

	c := &Collector{
		registry: reg,
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Test runs accepted for execution.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Test runs that reached a terminal state.",
		}, []string{"status"}),
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Test runs currently executing.",
		}),
		runScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_score",
			Help:      "Overall score of finished runs.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of finished runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Duration of individual checks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"check"}),
		checkStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_results_total",
			Help:      "Check results by kind and status.",
		}, []string{"check", "status"}),
		blockedOrigins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_origins_total",
			Help:      "Targets rejected by the origin guard.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.runsStarted,
		c.runsFinished,
		c.runsInFlight,
		c.runScore,
		c.runDuration,
		c.checkDuration,
		c.checkStatus,
		c.blockedOrigins,
	)
	return c
}

func (c *Collector) RunStarted() {
	c.runsStarted.Inc()
	c.runsInFlight.Inc()
}

func (c *Collector) RunFinished(status run.RunStatus, score int, elapsed time.Duration) {
	c.runsInFlight.Dec()
	c.runsFinished.WithLabelValues(string(status)).Inc()
	c.runScore.Observe(float64(score))
	c.runDuration.Observe(elapsed.Seconds())
}

func (c *Collector) CheckObserved(kind run.Kind, status run.Status, elapsed time.Duration) {
	c.checkDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	c.checkStatus.WithLabelValues(string(kind), string(status)).Inc()
}

// OriginBlocked counts a guard rejection. It matches the guard's block hook.
func (c *Collector) OriginBlocked(reason string) {
	// Scheme rejections embed the offending scheme; keep the label bounded.
	if strings.HasPrefix(reason, "scheme ") {
		reason = "scheme not allowed"
	}
	c.blockedOrigins.WithLabelValues(reason).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
