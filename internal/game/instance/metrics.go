package instance

import "github.com/prometheus/client_golang/prometheus"

// Destroy reasons used as the "reason" label.
const (
	ReasonExplicit = "explicit"
	ReasonEmpty    = "empty"
	ReasonUnpinned = "unpinned"
	ReasonShutdown = "shutdown"
	ReasonAborted  = "aborted"
)

// InstancesCreated counts instances registered by kind.
// Use RegisterMetrics to register this with a Prometheus registry.
var InstancesCreated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "instancer_instances_created_total",
		Help: "Total number of instances created by kind",
	},
	[]string{"kind"},
)

// InstancesDestroyed counts destroyed instances by kind and reason.
var InstancesDestroyed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "instancer_instances_destroyed_total",
		Help: "Total number of instances destroyed by kind and reason",
	},
	[]string{"kind", "reason"},
)

// InstancesLive is the number of registered instances.
var InstancesLive = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "instancer_instances_live",
	Help: "Number of instances currently registered",
})

// OccupantsInside is the number of occupants inside any instance.
var OccupantsInside = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "instancer_occupants_inside",
	Help: "Number of occupants currently inside instances",
})

// ConstructionFailures counts entities skipped because their class could not be built.
var ConstructionFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "instancer_construction_failures_total",
		Help: "Total number of descriptors skipped during template load or clone, by class",
	},
	[]string{"class"},
)

// TimerFires counts closure and grace timer callbacks by outcome.
var TimerFires = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "instancer_timer_fires_total",
		Help: "Total number of lifecycle timer callbacks by timer and outcome",
	},
	[]string{"timer", "outcome"},
)

// RegisterMetrics registers instance package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(InstancesCreated)
	reg.MustRegister(InstancesDestroyed)
	reg.MustRegister(InstancesLive)
	reg.MustRegister(OccupantsInside)
	reg.MustRegister(ConstructionFailures)
	reg.MustRegister(TimerFires)
}
