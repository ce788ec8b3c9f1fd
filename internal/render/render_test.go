package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/t77yq/benchconsole/internal/analysis"
	"github.com/t77yq/benchconsole/internal/fleet"
	"github.com/t77yq/benchconsole/internal/model"
	"github.com/t77yq/benchconsole/internal/monitor"
)

func TestClients(t *testing.T) {
	var buf bytes.Buffer
	Clients(&buf, []fleet.Row{
		fleet.RowFor(model.Client{ID: "client-01", Hostname: "node-1", Status: model.ClientStatusOnline, DeploymentStatus: "installing", DeploymentStep: "copying agent"}, false),
		fleet.RowFor(model.Client{ID: "client-02", Hostname: "node-2", Status: model.ClientStatusError}, false),
	})

	out := buf.String()
	assert.Contains(t, out, "HOSTNAME")
	assert.Contains(t, out, "copying agent")
	assert.Contains(t, out, string(fleet.PhaseDeploying))
	assert.Contains(t, out, model.NoErrorDetails)
}

func TestExecutionWithoutBaseline(t *testing.T) {
	exec := &model.Execution{ID: "exec-001", Name: "seq", Status: model.ExecutionStatusRunning, TotalThroughputMBps: 500}
	result := analysis.Analyze(analysis.FromExecution(exec))

	var buf bytes.Buffer
	Execution(&buf, monitor.View{ExecutionID: "exec-001", Execution: exec, Status: exec.Status, Analysis: &result})

	out := buf.String()
	assert.Contains(t, out, "Execution exec-001")
	assert.Contains(t, out, analysis.NoData)
	assert.NotContains(t, out, "NaN")
	assert.NotContains(t, out, "0.0%")
}

func TestBaseline(t *testing.T) {
	var buf bytes.Buffer
	Baseline(&buf, model.NetworkBaseline{
		Source:      "suggestion",
		ClusterName: "ceph-a",
		Suggestions: &model.Suggestions{Bottleneck: "no_clients"},
	})

	out := buf.String()
	assert.Contains(t, out, "no baseline")
	assert.Contains(t, out, "no_clients")
	assert.Contains(t, out, analysis.NoData)
}

func TestSeriesKeepsTail(t *testing.T) {
	points := monitor.BuildSeries([]model.MetricSample{
		{IOPS: model.ReadWrite{Read: 1}},
		{IOPS: model.ReadWrite{Read: 2}},
		{IOPS: model.ReadWrite{Read: 3}},
	})

	var buf bytes.Buffer
	Series(&buf, points, 1)
	out := buf.String()
	assert.Contains(t, out, "│ 2 │")
	assert.NotContains(t, out, "│ 0 │")
}

func TestPrechecks(t *testing.T) {
	var buf bytes.Buffer
	Prechecks(&buf, &model.PrecheckReport{
		OverallStatus:  model.PrecheckFailed,
		ClusterHealth:  "HEALTH_WARN",
		ClientsTotal:   3,
		ClientsOnline:  2,
		ClusterChecks:  []model.PrecheckResult{{Name: "osd_up", Severity: "critical", Message: "2 osds down"}},
		Warnings:       []string{"clock skew on mon-b"},
		BlockingIssues: []string{"client-03 offline"},
	})

	out := buf.String()
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "no")
	assert.Contains(t, out, "2/3 online")
	assert.Contains(t, out, "fail (critical) 2 osds down")
	assert.Contains(t, out, "client-03 offline")
	assert.Contains(t, out, "clock skew on mon-b")
}
