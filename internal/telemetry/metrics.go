// Package telemetry exposes console counters to prometheus.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "benchconsole"

// Metrics holds the console's prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	polls       *prometheus.CounterVec
	applied     *prometheus.CounterVec
	discarded   *prometheus.CounterVec
	failed      *prometheus.CounterVec
	commands    *prometheus.CounterVec
	profileRuns *prometheus.CounterVec
	liveEvents  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Settled polls by resource and result.",
		}, []string{"resource", "result"}),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_applied_total",
			Help:      "Values applied to the resource cache.",
		}, []string{"resource"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_discarded_total",
			Help:      "Out-of-order results discarded by the resource cache.",
		}, []string{"resource"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_failed_total",
			Help:      "Fetch failures recorded by the resource cache.",
		}, []string{"resource"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands sent to the backend by name and result.",
		}, []string{"command", "result"}),
		profileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "network_profile_runs_total",
			Help:      "Finished network profile runs by final state.",
		}, []string{"state"}),
		liveEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_events_total",
			Help:      "Events received from push-based live feeds.",
		}, []string{"feed", "event"}),
	}

	reg.MustRegister(m.polls, m.applied, m.discarded, m.failed, m.commands, m.profileRuns, m.liveEvents)
	return m
}

// Polled implements poller.Observer
func (m *Metrics) Polled(resource string, err error) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(resource, result(err)).Inc()
}

// Applied implements cache.Observer
func (m *Metrics) Applied(resource string) {
	if m == nil {
		return
	}
	m.applied.WithLabelValues(resource).Inc()
}

// Discarded implements cache.Observer
func (m *Metrics) Discarded(resource string) {
	if m == nil {
		return
	}
	m.discarded.WithLabelValues(resource).Inc()
}

// Failed implements cache.Observer
func (m *Metrics) Failed(resource string) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(resource).Inc()
}

// Command records one backend command
func (m *Metrics) Command(name string, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name, result(err)).Inc()
}

// ProfileFinished records the final state of a network profile run
func (m *Metrics) ProfileFinished(state string) {
	if m == nil {
		return
	}
	m.profileRuns.WithLabelValues(state).Inc()
}

// LiveEvent records one event from a live feed
func (m *Metrics) LiveEvent(feed, event string) {
	if m == nil {
		return
	}
	m.liveEvents.WithLabelValues(feed, event).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
