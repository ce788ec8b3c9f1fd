package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/t77yq/benchconsole/internal/model"
	"github.com/t77yq/benchconsole/internal/scheduler"
	"github.com/t77yq/benchconsole/internal/storage"
)

// Clusters prints the cluster inventory
func Clusters(w io.Writer, clusters []model.Cluster) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Storage", "Backend", "Monitors", "Installer"})
	for _, c := range clusters {
		monitors, installer := "-", "-"
		if c.Ceph != nil && len(c.Ceph.Monitors) > 0 {
			monitors = strings.Join(c.Ceph.Monitors, ",")
		}
		if c.InstallerNode != nil {
			installer = c.InstallerNode.Host
		}
		t.AppendRow(table.Row{c.Name, dash(c.StorageType), dash(c.Backend), monitors, installer})
	}
	t.Render()
}

// Health prints a cluster health summary
func Health(w io.Writer, h *model.ClusterHealth) {
	t := newTable(w)
	t.SetTitle("Cluster " + h.Cluster)
	t.AppendRow(table.Row{"Health", h.Health})
	t.AppendRow(table.Row{"State", dash(h.State)})
	for _, c := range h.Checks {
		t.AppendRow(table.Row{"Check", c})
	}
	t.Render()
}

// Prechecks prints a precheck report. Blocking issues come before warnings.
func Prechecks(w io.Writer, r *model.PrecheckReport) {
	t := newTable(w)
	t.SetTitle("Prechecks " + strings.ToUpper(dash(r.OverallStatus)))
	proceed := "no"
	if r.CanProceed {
		proceed = "yes"
	}
	t.AppendRow(table.Row{"Can proceed", proceed})
	if r.ClusterHealth != "" {
		t.AppendRow(table.Row{"Cluster health", r.ClusterHealth})
	}
	if r.ClientsTotal > 0 {
		t.AppendRow(table.Row{"Clients", fmt.Sprintf("%d/%d online", r.ClientsOnline, r.ClientsTotal)})
	}
	for _, c := range r.ClusterChecks {
		result := "pass"
		if !c.Passed {
			result = "fail (" + dash(c.Severity) + ")"
		}
		t.AppendRow(table.Row{"Check " + c.Name, result + " " + c.Message})
	}
	for _, issue := range r.BlockingIssues {
		t.AppendRow(table.Row{"Blocking", issue})
	}
	for _, warning := range r.Warnings {
		t.AppendRow(table.Row{"Warning", warning})
	}
	t.Render()
}

// Workloads prints workload definitions
func Workloads(w io.Writer, workloads []model.Workload) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Cluster", "Storage", "Baseline", "Description"})
	for _, wl := range workloads {
		baseline := "-"
		if b := wl.NetworkBaseline; b != nil {
			baseline = b.Source
			if b.Suggestions != nil && b.Suggestions.EstimatedAchievableThroughputMbps > 0 {
				baseline += fmt.Sprintf(" (%.0f Mbps)", b.Suggestions.EstimatedAchievableThroughputMbps)
			}
		}
		t.AppendRow(table.Row{wl.Name, dash(wl.ClusterName), dash(wl.StorageType), baseline, wl.Description})
	}
	t.Render()
}

// History prints recorded executions
func History(w io.Writer, records []*storage.ExecutionRecord, total int) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Execution", "Name", "Cluster", "Status", "MB/s", "Efficiency", "Utilization", "Bottleneck", "Completed"})
	for _, r := range records {
		t.AppendRow(table.Row{
			r.ExecutionID, r.Name, dash(r.ClusterName), r.Status,
			fmt.Sprintf("%.1f", r.ThroughputMBps),
			r.Efficiency.String(), r.Utilization.String(), r.Bottleneck,
			clock(r.CompletedAt),
		})
	}
	t.AppendFooter(table.Row{"Total", total})
	t.Render()
}

// Jobs prints scheduled jobs
func Jobs(w io.Writer, jobs []*scheduler.Job) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Expression", "Runs", "Last run", "Next run", "Last error"})
	for _, j := range jobs {
		t.AppendRow(table.Row{j.Name, j.Expression, j.Runs, clock(j.LastRunTime), clock(j.NextRunTime), dash(j.LastError)})
	}
	t.Render()
}
