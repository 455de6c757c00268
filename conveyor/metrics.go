package conveyor

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/john/conveyor_client/printer"
)

var (
	stateUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conveyor",
			Subsystem: "client",
			Name:      "state_updates_total",
			Help:      "Printer state documents received, by outcome",
		},
		[]string{"result"},
	)

	jobsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "conveyor",
			Subsystem: "client",
			Name:      "jobs_dispatched_total",
			Help:      "Job requests sent to the daemon, by kind and outcome",
		},
		[]string{"kind", "result"},
	)

	pendingCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "conveyor",
			Subsystem: "client",
			Name:      "pending_calls",
			Help:      "JSON-RPC calls awaiting a response",
		},
	)
)

func init() {
	prometheus.MustRegister(stateUpdatesTotal, jobsDispatchedTotal, pendingCalls)
}

// updateResult labels the outcome of applying a state document.
func updateResult(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, printer.ErrInvalidStateValue):
		return "invalid_state"
	case errors.Is(err, printer.ErrIdentityMismatch):
		return "identity_mismatch"
	case errors.Is(err, printer.ErrMalformedDocument):
		return "malformed"
	default:
		return "error"
	}
}
