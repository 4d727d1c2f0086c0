// Package metrics exposes Prometheus metrics for verifications, pipeline stages, corpus reloads and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperjump/kensho/internal/models"
)

// Collector owns a registry and the kensho metrics registered on it.
type Collector struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	stageDuration      *prometheus.HistogramVec
	stageFailures      *prometheus.CounterVec
	verifications      *prometheus.CounterVec
	verifyDuration     prometheus.Histogram
	confidence         *prometheus.HistogramVec
	evidenceCount      prometheus.Histogram
	corpusFacts        prometheus.Gauge
	corpusReloads      *prometheus.CounterVec
	embeddingCacheHits prometheus.GaugeFunc
}

// NewCollector registers all metrics under namespace on a fresh registry, along with the Go and
// process collectors. cacheHits may be nil.
func NewCollector(namespace string, cacheHits func() float64) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	c := &Collector{registry: reg}
	c.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "route", "status"})
	c.httpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
	c.stageDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage duration in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"stage"})
	c.stageFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_failures_total",
		Help:      "Pipeline stage failures by error category",
	}, []string{"stage", "category"})
	c.verifications = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verifications_total",
		Help:      "Completed verifications by verdict, or by error category when failed",
	}, []string{"outcome"})
	c.verifyDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "verification_duration_seconds",
		Help:      "End-to-end verification duration in seconds",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})
	c.confidence = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "verdict_confidence",
		Help:      "Confidence of returned verdicts",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
	}, []string{"verdict"})
	c.evidenceCount = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "evidence_items",
		Help:      "Evidence items retrieved per verification",
		Buckets:   prometheus.LinearBuckets(0, 1, 11),
	})
	c.corpusFacts = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "corpus_facts",
		Help:      "Facts in the published corpus snapshot",
	})
	c.corpusReloads = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "corpus_reloads_total",
		Help:      "Corpus reload attempts by result",
	}, []string{"result"})
	if cacheHits != nil {
		c.embeddingCacheHits = factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "embedding_cache_hits",
			Help:      "Query embedding cache hits since start",
		}, cacheHits)
	}
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveStage records one pipeline stage.
func (c *Collector) ObserveStage(stage string, d time.Duration, err error) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		c.stageFailures.WithLabelValues(stage, string(models.CategoryOf(err))).Inc()
	}
}

// ObserveVerification records one finished verification.
func (c *Collector) ObserveVerification(verdict models.Verdict, confidence float64, evidence int, d time.Duration, err error) {
	c.verifyDuration.Observe(d.Seconds())
	c.evidenceCount.Observe(float64(evidence))
	if err != nil {
		c.verifications.WithLabelValues(string(models.CategoryOf(err))).Inc()
		return
	}
	c.verifications.WithLabelValues(string(verdict)).Inc()
	c.confidence.WithLabelValues(string(verdict)).Observe(confidence)
}

// RecordHTTPRequest records one HTTP request by route pattern.
func (c *Collector) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordReload records a corpus reload attempt and, on success, the new corpus size.
func (c *Collector) RecordReload(facts int, err error) {
	if err != nil {
		c.corpusReloads.WithLabelValues("failure").Inc()
		return
	}
	c.corpusReloads.WithLabelValues("success").Inc()
	c.corpusFacts.Set(float64(facts))
}
