// Package metrics records run counters on a private Prometheus registry and
// writes them in the node-exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cantalupo555/backoffice-csv-exporter/internal/artifact"
)

const namespace = "backoffice_exporter"

// Locate results.
const (
	ResultFound    = "found"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Recorder holds the collectors of one run.
type Recorder struct {
	registry   *prometheus.Registry
	attempts   *prometheus.CounterVec
	captured   *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	success    prometheus.Gauge
	duration   prometheus.Gauge
	finishedAt prometheus.Gauge
}

// New builds a Recorder with a fresh registry, so repeated runs in one
// process never collide on registration.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "locate_attempts_total",
			Help:      "Locator strategy attempts by outcome.",
		}, []string{"strategy", "result"}),
		captured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Accepted artifacts by delivery channel.",
		}, []string{"channel"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_payloads_total",
			Help:      "Payloads that failed validation by delivery channel.",
		}, []string{"channel"}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run wrote an export, 0 otherwise.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall-clock duration of the last run.",
		}),
		finishedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	r.registry.MustRegister(r.attempts, r.captured, r.rejected, r.success, r.duration, r.finishedAt)
	return r
}

// Attempt counts one locate attempt of strategy.
func (r *Recorder) Attempt(strategy, result string) {
	r.attempts.WithLabelValues(strategy, result).Inc()
}

func (r *Recorder) Captured(ch artifact.Channel) {
	r.captured.WithLabelValues(string(ch)).Inc()
}

func (r *Recorder) Rejected(ch artifact.Channel) {
	r.rejected.WithLabelValues(string(ch)).Inc()
}

// Finish stamps the run result.
func (r *Recorder) Finish(success bool, elapsed time.Duration) {
	if success {
		r.success.Set(1)
	} else {
		r.success.Set(0)
	}
	r.duration.Set(elapsed.Seconds())
	r.finishedAt.SetToCurrentTime()
}

// Registry exposes the collectors, e.g. for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// WriteTextfile atomically writes all metrics to path. An empty path is a
// no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
