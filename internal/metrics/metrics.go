// Package metrics exposes Prometheus counters for the CRM engine.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the instrument set shared by the CRM services.
type Metrics struct {
	registry *prometheus.Registry

	ScoreChanges       *prometheus.CounterVec
	DealTransitions    *prometheus.CounterVec
	DealClosures       *prometheus.CounterVec
	ActivitiesLogged   *prometheus.CounterVec
	SegmentEvaluations *prometheus.CounterVec
	TasksCompleted     prometheus.Counter
	OverdueTasksSwept  prometheus.Counter
}

// New registers the CRM instrument set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ScoreChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "scoring",
			Name:      "score_changes_total",
			Help:      "Lead score changes applied, partitioned by trigger.",
		}, []string{"trigger"}),
		DealTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "pipeline",
			Name:      "deal_transitions_total",
			Help:      "Deal stage transitions recorded.",
		}, []string{"direction"}),
		DealClosures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "pipeline",
			Name:      "deal_closures_total",
			Help:      "Deals closed, partitioned by outcome.",
		}, []string{"outcome"}),
		ActivitiesLogged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "activity",
			Name:      "entries_total",
			Help:      "Activity log entries appended, partitioned by type.",
		}, []string{"type"}),
		SegmentEvaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "segments",
			Name:      "evaluations_total",
			Help:      "Segment membership evaluations, partitioned by segment type.",
		}, []string{"segment_type"}),
		TasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "tasks",
			Name:      "completed_total",
			Help:      "Tasks marked completed.",
		}),
		OverdueTasksSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "tasks",
			Name:      "overdue_swept_total",
			Help:      "Tasks flagged overdue by the scheduler sweep.",
		}),
	}
}

// Handler returns the gin handler serving the /metrics endpoint.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
