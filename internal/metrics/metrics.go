package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "content_refresher", Name: "refresh_total", Help: "Refresh attempts by trigger and status."},
		[]string{"trigger", "status"},
	)
	SectionsChanged = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "content_refresher", Name: "sections_changed_total", Help: "Sections overwritten by refreshes."},
	)
	GenerationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "content_refresher",
			Name:      "generation_duration_seconds",
			Help:      "Latency of generation service calls.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		},
	)
	DispatchEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "content_refresher", Name: "dispatch_enqueued_total", Help: "Refresh jobs enqueued by the scheduler."},
	)
	DispatchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "content_refresher", Name: "dispatch_errors_total", Help: "Scheduler failures by stage."},
		[]string{"stage"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RefreshTotal)
	reg.MustRegister(SectionsChanged)
	reg.MustRegister(GenerationDuration)
	reg.MustRegister(DispatchEnqueued)
	reg.MustRegister(DispatchErrors)
}
