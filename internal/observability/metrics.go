package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ngmod"

var (
	automodTriggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "automod_triggers_total",
			Help:      "Automod rules that fired, by rule kind",
		},
		[]string{"kind"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Moderation actions attempted, by action and result",
		},
		[]string{"action", "result"},
	)

	timersFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timers_fired_total",
			Help:      "Deferred actions dispatched by the timer queue",
		},
		[]string{"kind", "result"},
	)

	auditDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_deliveries_total",
			Help:      "Audit records delivered or dropped",
		},
		[]string{"result"},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Slash commands handled",
		},
		[]string{"command", "result"},
	)

	cacheLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_loads_total",
			Help:      "Config cache loads from the store",
		},
		[]string{"kind", "result"},
	)
)

func metricCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		automodTriggersTotal,
		actionsTotal,
		timersFiredTotal,
		auditDeliveriesTotal,
		commandsTotal,
		cacheLoadsTotal,
	}
}

func RecordAutomodTrigger(kind string) {
	automodTriggersTotal.WithLabelValues(kind).Inc()
}

func RecordAction(action, result string) {
	actionsTotal.WithLabelValues(action, result).Inc()
}

func RecordTimerFired(kind, result string) {
	timersFiredTotal.WithLabelValues(kind, result).Inc()
}

func RecordAuditDelivery(result string) {
	auditDeliveriesTotal.WithLabelValues(result).Inc()
}

func RecordCommand(command, result string) {
	commandsTotal.WithLabelValues(command, result).Inc()
}

func RecordCacheLoad(kind, result string) {
	cacheLoadsTotal.WithLabelValues(kind, result).Inc()
}
