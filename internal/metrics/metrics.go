package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	supervisorStarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "opsup",
			Subsystem: "supervisor",
			Name:      "starts_total",
			Help:      "Number of start sequences initiated.",
		},
	)
	supervisorRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "opsup",
			Subsystem: "supervisor",
			Name:      "restarts_total",
			Help:      "Number of restart sequences initiated.",
		},
	)
	supervisorStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "opsup",
			Subsystem: "supervisor",
			Name:      "stops_total",
			Help:      "Number of stop requests (graceful or kill).",
		},
	)
	unexpectedExits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "opsup",
			Subsystem: "supervisor",
			Name:      "unexpected_exits_total",
			Help:      "Number of CLI exits not caused by terminate.",
		},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opsup",
			Subsystem: "supervisor",
			Name:      "state_transitions_total",
			Help:      "Number of transitions between supervisor states.",
		}, []string{"from", "to"},
	)
	currentStates = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "opsup",
			Subsystem: "supervisor",
			Name:      "current_state",
			Help:      "Current supervisor state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)
	probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "opsup",
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Observed duration of health probes per endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"},
	)
	probeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opsup",
			Subsystem: "probe",
			Name:      "failures_total",
			Help:      "Number of failed health probes per endpoint.",
		}, []string{"endpoint"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{supervisorStarts, supervisorRestarts, supervisorStops, unexpectedExits, stateTransitions, currentStates, probeDuration, probeFailures}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller is responsible for wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Lightweight helpers used by internal packages. They no-op until Register
// has been called.

func IncStart() {
	if regOK.Load() {
		supervisorStarts.Inc()
	}
}

func IncRestart() {
	if regOK.Load() {
		supervisorRestarts.Inc()
	}
}

func IncStop() {
	if regOK.Load() {
		supervisorStops.Inc()
	}
}

func IncUnexpectedExit() {
	if regOK.Load() {
		unexpectedExits.Inc()
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

func SetCurrentState(state string, active bool) {
	if regOK.Load() {
		var value float64
		if active {
			value = 1
		}
		currentStates.WithLabelValues(state).Set(value)
	}
}

func ObserveProbeDuration(endpoint string, seconds float64) {
	if regOK.Load() {
		probeDuration.WithLabelValues(endpoint).Observe(seconds)
	}
}

func IncProbeFailure(endpoint string) {
	if regOK.Load() {
		probeFailures.WithLabelValues(endpoint).Inc()
	}
}
