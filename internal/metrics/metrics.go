// Package metrics exposes run counters in Prometheus form. The CLI is a
// one-shot process, so the registry is written to a node-exporter textfile
// at the end of a run rather than served over HTTP.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hyperifyio/webcorpus/internal/extract"
	"github.com/hyperifyio/webcorpus/internal/pipeline"
)

const namespace = "webcorpus"

// Collector counts pipeline events. It implements pipeline.Observer.
type Collector struct {
	pipeline.NopObserver

	Registry *prometheus.Registry

	runs       *prometheus.CounterVec
	pages      *prometheus.CounterVec
	attempts   *prometheus.CounterVec
	uploads    *prometheus.CounterVec
	fallbacks  prometheus.Counter
	uploadTime prometheus.Histogram
	indexed    prometheus.Gauge
	lastRun    prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished runs by final status.",
		}, []string{"status"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Extracted pages by extraction status.",
		}, []string{"status"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_attempts_total",
			Help:      "Scraping backend attempts by backend and outcome.",
		}, []string{"backend", "outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Document uploads by outcome.",
		}, []string{"outcome"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_fallbacks_total",
			Help:      "Times a run moved on to the next backend.",
		}),
		uploadTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Wall time per document upload including retries and indexing.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		indexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_files_indexed",
			Help:      "Pages indexed by the most recent run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the most recent run finished.",
		}),
	}
	c.Registry.MustRegister(c.runs, c.pages, c.attempts, c.uploads, c.fallbacks, c.uploadTime, c.indexed, c.lastRun)
	return c
}

func (c *Collector) BackendAttempted(_ string, backendID string, pages int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		if pages > 0 {
			outcome = "partial"
		}
	}
	c.attempts.WithLabelValues(backendID, outcome).Inc()
}

func (c *Collector) PageExtracted(_ string, p extract.PageResult) {
	c.pages.WithLabelValues(string(p.Status)).Inc()
}

func (c *Collector) DocumentUploaded(_ string, _ string, _ int, elapsed time.Duration, err error) {
	if err != nil {
		c.uploads.WithLabelValues("failed").Inc()
	} else {
		c.uploads.WithLabelValues("ok").Inc()
	}
	if elapsed > 0 {
		c.uploadTime.Observe(elapsed.Seconds())
	}
}

func (c *Collector) RunFinished(s pipeline.Summary) {
	c.runs.WithLabelValues(s.Status).Inc()
	c.fallbacks.Add(float64(s.BackendFallbacks))
	c.indexed.Set(float64(s.FilesIndexed))
	c.lastRun.Set(float64(s.FinishedAt.Unix()))
}

// WriteTextfile writes the registry in text exposition format. The write is
// atomic, so a scraping node exporter never sees a partial file.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.Registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
