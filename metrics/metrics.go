// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/Tutortoise/rice-leaf-service/classifier"
	"github.com/Tutortoise/rice-leaf-service/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "riceleaf"

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	predictions     *prometheus.CounterVec
	predictDuration prometheus.Histogram
	viewsPerPredict prometheus.Histogram
	httpRequests    *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Completed predictions by predicted class and uncertainty.",
		}, []string{"class", "uncertain"}),
		predictDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "Time from sampling to assembled prediction.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		viewsPerPredict: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "views_per_prediction",
			Help:      "Distinct views classified per prediction.",
			Buckets:   prometheus.LinearBuckets(1, 2, 11),
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route template and status code.",
		}, []string{"route", "code"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"path"}),
	}

	c.registry.MustRegister(
		c.predictions,
		c.predictDuration,
		c.viewsPerPredict,
		c.httpRequests,
		c.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) ObservePrediction(p *models.Prediction, t models.ProcessingTimings) {
	c.predictions.WithLabelValues(p.PredictedClass, strconv.FormatBool(p.IsUncertain)).Inc()
	c.predictDuration.Observe(t.Total.Seconds())
	c.viewsPerPredict.Observe(float64(p.ViewCount))
}

func (c *Collector) ObserveRequest(route string, code int) {
	c.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (c *Collector) RateLimited(path string) {
	c.rateLimited.WithLabelValues(path).Inc()
}

// PoolStatter reports classifier session pool statistics.
type PoolStatter interface {
	Stats() classifier.PoolStats
}

// RegisterPool exports the pool's statistics as gauges read on each scrape.
func (c *Collector) RegisterPool(pool PoolStatter) {
	gauge := func(name, help string, read func(classifier.PoolStats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return read(pool.Stats()) })
	}

	c.registry.MustRegister(
		gauge("size", "Configured number of model sessions.", func(s classifier.PoolStats) float64 { return float64(s.Size) }),
		gauge("live", "Sessions currently alive.", func(s classifier.PoolStats) float64 { return float64(s.Live) }),
		gauge("in_use", "Sessions checked out.", func(s classifier.PoolStats) float64 { return float64(s.InUse) }),
		gauge("acquired_total", "Sessions acquired since start.", func(s classifier.PoolStats) float64 { return float64(s.TotalAcquired) }),
		gauge("acquire_failures_total", "Acquire calls that timed out or were cancelled.", func(s classifier.PoolStats) float64 { return float64(s.AcquireFailures) }),
		gauge("discarded_total", "Sessions dropped after a failed run.", func(s classifier.PoolStats) float64 { return float64(s.Discarded) }),
	)
}
