// Package metrics holds the prometheus collectors shared by the store, the
// validator and the diagram pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genealogy_records_scanned_total",
		Help: "Relative record files decoded during store scans",
	})

	RecordDecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "genealogy_record_decode_failures_total",
		Help: "Relative record files skipped because they could not be decoded",
	})

	RecordWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genealogy_record_writes_total",
		Help: "Relative record writes by reason",
	}, []string{"reason"}) // "save", "cascade" or "rename"

	ValidationWarnings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "genealogy_validation_warnings",
		Help: "Warnings reported by the most recent consistency check",
	})

	DiagramRenders = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "genealogy_diagram_renders_total",
		Help: "Family diagram renders by result",
	}, []string{"result"})

	DiagramRenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "genealogy_diagram_render_duration_seconds",
		Help:    "Time spent generating and rasterizing one family diagram",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~32s
	})

	RenderQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "genealogy_render_queue_depth",
		Help: "Diagram render jobs waiting in the queue",
	})
)
