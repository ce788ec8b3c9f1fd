package render

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/t77yq/benchconsole/internal/analysis"
	"github.com/t77yq/benchconsole/internal/model"
	"github.com/t77yq/benchconsole/internal/monitor"
)

// Executions prints the execution listing
func Executions(w io.Writer, list []model.Execution) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Name", "Workload", "Cluster", "Status", "Clients", "IOPS", "MB/s", "Lat (us)", "Started"})
	for _, e := range list {
		t.AppendRow(table.Row{
			e.ID, e.Name, dash(e.WorkloadName), dash(e.ClusterName), e.Status, e.ClientCount,
			fmt.Sprintf("%.0f", e.TotalIOPS),
			fmt.Sprintf("%.1f", e.TotalThroughputMBps),
			fmt.Sprintf("%.0f", e.AvgLatencyUs),
			timestamp(e.StartedAt),
		})
	}
	t.AppendFooter(table.Row{"Total", len(list)})
	t.Render()
}

// Execution prints the detail view of one execution
func Execution(w io.Writer, v monitor.View) {
	t := newTable(w)
	t.SetTitle("Execution " + v.ExecutionID)
	t.AppendRow(table.Row{"Status", status(v)})
	if e := v.Execution; e != nil {
		t.AppendRow(table.Row{"Name", e.Name})
		t.AppendRow(table.Row{"Workload", dash(e.WorkloadName)})
		t.AppendRow(table.Row{"Cluster", dash(e.ClusterName)})
		t.AppendRow(table.Row{"Clients", e.ClientCount})
		t.AppendRow(table.Row{"Started", timestamp(e.StartedAt)})
		t.AppendRow(table.Row{"Completed", timestamp(e.CompletedAt)})
	}
	if v.ErrorMessage != "" {
		t.AppendRow(table.Row{"Error", v.ErrorMessage})
	}
	if v.PollError != "" {
		t.AppendRow(table.Row{"Poll error", v.PollError})
	}
	if v.MetricsError != "" {
		t.AppendRow(table.Row{"Metrics error", v.MetricsError})
	}
	t.AppendRow(table.Row{"Samples", v.Samples})
	if v.Analysis != nil {
		t.AppendSeparator()
		analysisRows(t, *v.Analysis)
	}
	t.Render()
}

// Series prints the trailing points of a derived series
func Series(w io.Writer, points []monitor.SeriesPoint, last int) {
	if last > 0 && len(points) > last {
		points = points[len(points)-last:]
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "IOPS", "Read", "Write", "MB/s", "Lat (us)"})
	for _, p := range points {
		t.AppendRow(table.Row{
			p.Time,
			fmt.Sprintf("%.0f", p.IOPS),
			fmt.Sprintf("%.0f", p.ReadIOPS),
			fmt.Sprintf("%.0f", p.WriteIOPS),
			fmt.Sprintf("%.1f", p.Throughput),
			fmt.Sprintf("%.0f", p.Latency),
		})
	}
	t.Render()
}

// Commands prints an execution's remote command log
func Commands(w io.Writer, log *model.CommandLog) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Time", "Client", "Command", "Description"})
	for _, c := range log.Commands {
		ts := c.Timestamp
		t.AppendRow(table.Row{timestamp(&ts), dash(c.ClientID), c.Command, c.Description})
	}
	t.AppendFooter(table.Row{"Total", log.Total})
	t.Render()
}

func status(v monitor.View) string {
	s := string(v.Status)
	if v.Stale {
		s += " (refreshing)"
	}
	return dash(s)
}

func analysisRows(t table.Writer, r analysis.Result) {
	t.AppendRow(table.Row{"Achieved", fmt.Sprintf("%.1f MB/s", r.AchievedMBps)})
	t.AppendRow(table.Row{"Expected", optional(r.ExpectedMBps, "%.1f MB/s")})
	t.AppendRow(table.Row{"Max theoretical", optional(r.MaxMBps, "%.1f MB/s")})
	t.AppendRow(table.Row{"Efficiency", r.Efficiency.String()})
	t.AppendRow(table.Row{"Utilization", r.Utilization.String()})
	if r.Band != analysis.BandNone {
		t.AppendRow(table.Row{"Band", r.Band})
	}
	t.AppendRow(table.Row{"Bottleneck", r.Bottleneck})
}
