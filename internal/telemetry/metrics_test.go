package telemetry

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Polled("execution", nil)
	m.Polled("execution", nil)
	m.Polled("execution", errors.New("timeout"))
	m.Discarded("execution")
	m.Command("stop", nil)
	m.Command("deploy", errors.New("bad request"))
	m.ProfileFinished("done")
	m.LiveEvent("nats", "metrics")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.polls.WithLabelValues("execution", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("execution", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.discarded.WithLabelValues("execution")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("stop", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("deploy", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.profileRuns.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.liveEvents.WithLabelValues("nats", "metrics")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Polled("clients", nil)
		m.Applied("clients")
		m.Discarded("clients")
		m.Failed("clients")
		m.Command("delete", nil)
		m.ProfileFinished("error")
		m.LiveEvent("websocket", "status")
	})
}
