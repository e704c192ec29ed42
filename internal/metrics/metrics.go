package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "acstdl"

const (
	ResultOK        = "ok"
	ResultSkipped   = "skipped"
	ResultFailed    = "failed"
	ResultCancelled = "cancelled"
)

// Metrics is safe to use as a nil pointer, every method is a no-op then.
type Metrics struct {
	ProbesTotal        *prometheus.CounterVec
	ProbeDuration      prometheus.Histogram
	DownloadsTotal     *prometheus.CounterVec
	DownloadBytesTotal prometheus.Counter
	CleanedFilesTotal  prometheus.Counter
	RunsTotal          *prometheus.CounterVec
	RunDuration        prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		ProbesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Total number of metadata probes by result.",
			},
			[]string{"result"}, // ok or the error kind
		),
		ProbeDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "probe_duration_seconds",
				Help:      "Duration of metadata probes.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		DownloadsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Total number of candidate files by result.",
			},
			[]string{"result"},
		),
		DownloadBytesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "download_bytes_total",
				Help:      "Total number of downloaded bytes.",
			},
		),
		CleanedFilesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cleaned_files_total",
				Help:      "Total number of stale files removed.",
			},
		),
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of runs by final status.",
			},
			[]string{"status"},
		),
		RunDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of runs.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
	}
}

func (m *Metrics) ObserveProbe(result string, d time.Duration) {
	if m == nil {
		return
	}

	m.ProbesTotal.WithLabelValues(result).Inc()
	m.ProbeDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveDownload(result string, bytes int64) {
	if m == nil {
		return
	}

	m.DownloadsTotal.WithLabelValues(result).Inc()
	if bytes > 0 {
		m.DownloadBytesTotal.Add(float64(bytes))
	}
}

func (m *Metrics) ObserveCleanup(removed int) {
	if m == nil || removed <= 0 {
		return
	}

	m.CleanedFilesTotal.Add(float64(removed))
}

func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}

	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
}
