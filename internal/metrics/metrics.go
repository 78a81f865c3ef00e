// Package metrics records capacity search and probe metrics on a private
// Prometheus registry and exports them in the text exposition format.
//
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "density"

// Recorder holds the collectors for one process.
type Recorder struct {
	registry      *prometheus.Registry
	probes        *prometheus.CounterVec
	probeDuration prometheus.Histogram
	perStreamFPS  prometheus.Gauge
	searches      *prometheus.CounterVec
	bestStreams   *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with all collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "Probes executed, by result (pass, fail, unavailable).",
		}, []string{"result"}),
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Wall-clock duration of a single probe.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		perStreamFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_per_stream_fps",
			Help:      "Per-stream FPS reported by the most recent probe.",
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Completed capacity searches, by outcome.",
		}, []string{"outcome"}),
		bestStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_streams",
			Help:      "Maximum stream count meeting the FPS floor, per search.",
		}, []string{"search_id"}),
	}

	r.registry.MustRegister(r.probes, r.probeDuration, r.perStreamFPS, r.searches, r.bestStreams)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveProbe records one probe result.
func (r *Recorder) ObserveProbe(available, passed bool, perStreamFPS float64, d time.Duration) {
	if r == nil {
		return
	}
	result := "fail"
	switch {
	case !available:
		result = "unavailable"
	case passed:
		result = "pass"
	}
	r.probes.WithLabelValues(result).Inc()
	r.probeDuration.Observe(d.Seconds())
	r.perStreamFPS.Set(perStreamFPS)
}

// ObserveSearch records a finished search.
func (r *Recorder) ObserveSearch(id, outcome string, bestStreams int) {
	if r == nil {
		return
	}
	r.searches.WithLabelValues(outcome).Inc()
	r.bestStreams.WithLabelValues(id).Set(float64(bestStreams))
}

// WriteFile writes all metrics to path in the text exposition format.
func (r *Recorder) WriteFile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
