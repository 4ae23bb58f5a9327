package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whpoller_events_total",
			Help: "Processed events by final outcome",
		},
		[]string{"outcome"}, // sent|skipped|dead|retried|auth_failed
	)

	PollCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whpoller_poll_cycles_total",
			Help: "Poll cycles by result",
		},
		[]string{"result"}, // ok|empty|error
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EventsTotal,
		PollCyclesTotal,
	)
}
