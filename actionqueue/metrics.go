package actionqueue

import "github.com/prometheus/client_golang/prometheus"

var (
	actionsEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hopr",
		Subsystem: "action_queue",
		Name:      "actions_enqueued_total",
		Help:      "Actions accepted onto the queue, by action kind.",
	}, []string{"action"})

	actionsConfirmed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hopr",
		Subsystem: "action_queue",
		Name:      "actions_confirmed_total",
		Help:      "Actions whose confirming event was observed, by action kind.",
	}, []string{"action"})

	actionsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hopr",
		Subsystem: "action_queue",
		Name:      "actions_failed_total",
		Help:      "Actions that failed, by action kind and failure reason.",
	}, []string{"action", "reason"})

	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "hopr",
		Subsystem: "action_queue",
		Name:      "depth",
		Help:      "Current number of actions waiting to be processed.",
	})
)

func init() {
	prometheus.MustRegister(actionsEnqueued, actionsConfirmed, actionsFailed, queueDepth)
}
