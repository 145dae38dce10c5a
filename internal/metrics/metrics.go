// Package metrics records pipeline metrics in a dedicated Prometheus
// registry. A batch run has no scrape endpoint, so the registry is pushed to
// a Pushgateway at the end of the run when one is configured.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// JobName is the Pushgateway job
const JobName = "compliance_analytics"

// Recorder owns the pipeline collectors
type Recorder struct {
	registry *prometheus.Registry

	rows          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	groups        *prometheus.CounterVec

	logger logger.Logger
}

// NewRecorder creates a recorder with its own registry
func NewRecorder(log logger.Logger) *Recorder {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_rows_total",
				Help: "Rows affected by a recoverable condition, per stage",
			},
			[]string{"stage", "condition"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytics_stage_duration_seconds",
				Help:    "Stage duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage", "status"},
		),
		groups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_groups_total",
				Help: "Account or corridor groups processed, per stage and status",
			},
			[]string{"stage", "status"},
		),
		logger: log.WithComponent("metrics"),
	}
	r.registry.MustRegister(r.rows, r.stageDuration, r.groups)
	return r
}

// Registry exposes the registry for tests and custom exporters
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStage records a stage duration under its final status
func (r *Recorder) ObserveStage(stage, status string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// AddRows adds n rows for a condition
func (r *Recorder) AddRows(stage, condition string, n int) {
	if n <= 0 {
		return
	}
	r.rows.WithLabelValues(stage, condition).Add(float64(n))
}

// AddGroups records completed and skipped groups of a stage
func (r *Recorder) AddGroups(stage string, completed, skipped int) {
	if completed > 0 {
		r.groups.WithLabelValues(stage, "completed").Add(float64(completed))
	}
	if skipped > 0 {
		r.groups.WithLabelValues(stage, "skipped").Add(float64(skipped))
	}
}

// Push sends the registry to a Pushgateway grouped by run ID
func (r *Recorder) Push(url, runID string) error {
	if url == "" {
		return nil
	}
	err := push.New(url, JobName).
		Gatherer(r.registry).
		Grouping("run_id", runID).
		Push()
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "metrics push", fmt.Errorf("push to %s: %w", url, err)).
			WithSuggestion("check --pushgateway or unset it to keep metrics local")
	}
	r.logger.WithFields(logger.Fields{
		"pushgateway": url,
		"run_id":      runID,
	}).Info("Metrics pushed")
	return nil
}
