// Package metrics records export statistics as Prometheus metrics.
//
// Each Recorder owns its registry so one process can run several exports
// without sharing counters. The registry is dumped in text exposition
// format for node_exporter's textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Object status labels.
const (
	StatusConverted = "converted"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Recorder collects metrics for a single export run. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	objects        *prometheus.CounterVec
	entities       *prometheus.CounterVec
	assemblyEdges  *prometheus.CounterVec
	warnings       prometheus.Counter
	conversionTime *prometheus.HistogramVec
	exportDuration prometheus.Gauge
}

// NewRecorder creates a recorder with a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		objects: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gstep_objects_total",
				Help: "Database objects visited by the exporter",
			},
			[]string{"role", "status"},
		),
		entities: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gstep_entities_total",
				Help: "STEP entity instances written, by entity type",
			},
			[]string{"type"},
		),
		assemblyEdges: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gstep_assembly_edges_total",
				Help: "Parent/child assembly relationships",
			},
			[]string{"status"},
		),
		warnings: f.NewCounter(prometheus.CounterOpts{
			Name: "gstep_warnings_total",
			Help: "Non-fatal problems reported during export",
		}),
		conversionTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gstep_conversion_duration_seconds",
				Help:    "Time spent converting a single object",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"role"},
		),
		exportDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "gstep_export_duration_seconds",
			Help: "Wall time of the last export",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordObject counts a visited object.
func (r *Recorder) RecordObject(role, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.objects.WithLabelValues(role, status).Inc()
	if status == StatusConverted {
		r.conversionTime.WithLabelValues(role).Observe(d.Seconds())
	}
}

// RecordEdge counts an assembly relationship as emitted or dropped.
func (r *Recorder) RecordEdge(emitted bool) {
	if r == nil {
		return
	}
	status := "emitted"
	if !emitted {
		status = "dropped"
	}
	r.assemblyEdges.WithLabelValues(status).Inc()
}

// RecordWarning counts a non-fatal problem.
func (r *Recorder) RecordWarning() {
	if r == nil {
		return
	}
	r.warnings.Inc()
}

// RecordEntities adds per-type entity counts.
func (r *Recorder) RecordEntities(counts map[string]int) {
	if r == nil {
		return
	}
	for typ, n := range counts {
		r.entities.WithLabelValues(typ).Add(float64(n))
	}
}

// RecordExport sets the total export time.
func (r *Recorder) RecordExport(d time.Duration) {
	if r == nil {
		return
	}
	r.exportDuration.Set(d.Seconds())
}

// WriteTextfile writes every metric to path in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

// Timer is a helper for measuring duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
