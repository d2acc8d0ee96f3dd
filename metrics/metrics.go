package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "labelsys"

// Metrics holds the service counters. A nil *Metrics is valid and records
// nothing, so services can be built without a registry in tests.
type Metrics struct {
	assignments    *prometheus.CounterVec
	annotations    *prometheus.CounterVec
	exports        *prometheus.CounterVec
	exportImages   prometheus.Counter
	exportDuration prometheus.Histogram
	thumbnails     *prometheus.CounterVec
	queueDepth     prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "images_assigned_total",
			Help:      "Images assigned to annotators by mode (manual, auto).",
		}, []string{"mode"}),
		annotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "annotation",
			Name:      "writes_total",
			Help:      "Annotation writes by operation (create, update, delete, replace).",
		}, []string{"op"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "archives_total",
			Help:      "Dataset exports by result (success, failure).",
		}, []string{"result"}),
		exportImages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "images_total",
			Help:      "Images walked by dataset exports.",
		}),
		exportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "duration_seconds",
			Help:      "Wall time of dataset exports in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~100s
		}),
		thumbnails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "thumbnail",
			Name:      "jobs_total",
			Help:      "Thumbnail jobs by result (success, failure, dropped).",
		}, []string{"result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "thumbnail",
			Name:      "queue_depth",
			Help:      "Thumbnail jobs waiting in the queue.",
		}),
	}

	reg.MustRegister(
		m.assignments,
		m.annotations,
		m.exports,
		m.exportImages,
		m.exportDuration,
		m.thumbnails,
		m.queueDepth,
	)
	return m
}

func (m *Metrics) ImagesAssigned(mode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.assignments.WithLabelValues(mode).Add(float64(n))
}

func (m *Metrics) AnnotationWrite(op string) {
	if m == nil {
		return
	}
	m.annotations.WithLabelValues(op).Inc()
}

// ExportFinished records one export run.
func (m *Metrics) ExportFinished(images int, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.exports.WithLabelValues(result).Inc()
	m.exportImages.Add(float64(images))
	m.exportDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) ThumbnailJob(result string) {
	if m == nil {
		return
	}
	m.thumbnails.WithLabelValues(result).Inc()
}

func (m *Metrics) ThumbnailQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
