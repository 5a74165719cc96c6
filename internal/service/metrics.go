package service

import (
	"procurement/internal/apperror"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	decisions       *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	conflicts       *prometheus.CounterVec
	advisory        *prometheus.CounterVec
	advisoryLatency *prometheus.HistogramVec
}

// NewMetrics registers the service collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "procurement",
			Name:      "decisions_total",
			Help:      "Approval decisions recorded, by decision and approver level.",
		}, []string{"decision", "level"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "procurement",
			Name:      "status_transitions_total",
			Help:      "Request status transitions.",
		}, []string{"from", "to"}),
		conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "procurement",
			Name:      "conflicts_total",
			Help:      "Operations refused because of request state, by error code.",
		}, []string{"code"}),
		advisory: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "procurement",
			Name:      "advisory_jobs_total",
			Help:      "Background document analysis jobs, by job and result.",
		}, []string{"job", "result"}),
		advisoryLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "procurement",
			Name:      "advisory_job_duration_seconds",
			Help:      "Duration of background document analysis jobs.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"job"}),
	}
}

func (m *Metrics) countConflict(err error) {
	if apperror.KindOf(err) == apperror.KindConflict {
		m.conflicts.WithLabelValues(apperror.CodeOf(err)).Inc()
	}
}
