// Package metrics exposes fleek's Prometheus metrics on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the metrics for one process.
type Collector struct {
	registry *prometheus.Registry

	Extractions        *prometheus.CounterVec
	FragmentsMerged    prometheus.Counter
	StreamFailures     prometheus.Counter
	Generations        *prometheus.CounterVec
	GenerationDuration prometheus.Histogram
}

func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		Extractions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extractions_total",
				Help:      "Extractions by the strategy that produced the result",
			},
			[]string{"strategy"},
		),
		FragmentsMerged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fragments_merged_total",
				Help:      "Fragments merged into a running document",
			},
		),
		StreamFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_failures_total",
				Help:      "Backend streams that failed mid-turn",
			},
		),
		Generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Assistant turns by outcome",
			},
			[]string{"outcome"},
		),
		GenerationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Time from request to the end of an assistant turn",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
		),
	}

	registry.MustRegister(
		c.Extractions,
		c.FragmentsMerged,
		c.StreamFailures,
		c.Generations,
		c.GenerationDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// TrackSessions registers a gauge reporting fn at scrape time.
func (c *Collector) TrackSessions(namespace string, fn func() int) {
	c.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Live sessions held in memory",
		},
		func() float64 { return float64(fn()) },
	))
}

func (c *Collector) ObserveExtraction(strategy string, merged bool) {
	c.Extractions.WithLabelValues(strategy).Inc()
	if merged {
		c.FragmentsMerged.Inc()
	}
}

func (c *Collector) ObserveGeneration(outcome string, elapsed time.Duration) {
	c.Generations.WithLabelValues(outcome).Inc()
	c.GenerationDuration.Observe(elapsed.Seconds())
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
