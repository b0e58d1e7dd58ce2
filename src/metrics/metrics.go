// Package metrics exposes upload counters in the Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradeclean"

// Upload outcomes used as the "outcome" label.
const (
	OutcomeSuccess        = "success"
	OutcomeSummarySkipped = "summary_skipped"
	OutcomeParseFailed    = "parse_failed"
	OutcomeFailed         = "failed"
)

// Metrics owns its registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	UploadsTotal   *prometheus.CounterVec
	UploadDuration prometheus.Histogram
	UploadRows     prometheus.Histogram
	AmountWarnings prometheus.Counter
	CacheLookups   *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploads processed, by outcome.",
		}, []string{"outcome"}),
		UploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Time spent cleaning and summarizing an upload.",
			Buckets:   prometheus.DefBuckets,
		}),
		UploadRows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_rows",
			Help:      "Rows left in the cleaned table.",
			Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
		}),
		AmountWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "amount_warnings_total",
			Help:      "Amount cells that could not be parsed and were left empty.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_lookups_total",
			Help:      "Upload result lookups, by cache result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.UploadsTotal,
		m.UploadDuration,
		m.UploadRows,
		m.AmountWarnings,
		m.CacheLookups,
	)
	return m
}

// ObserveUpload records one finished upload. Row and warning counts are
// only recorded for uploads that produced a table.
func (m *Metrics) ObserveUpload(outcome string, rows, warnings int, elapsed time.Duration) {
	m.UploadsTotal.WithLabelValues(outcome).Inc()
	m.UploadDuration.Observe(elapsed.Seconds())
	if outcome == OutcomeSuccess || outcome == OutcomeSummarySkipped {
		m.UploadRows.Observe(float64(rows))
		m.AmountWarnings.Add(float64(warnings))
	}
}

func (m *Metrics) ObserveCacheLookup(hit bool) {
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
