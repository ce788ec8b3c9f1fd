package render

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/t77yq/benchconsole/internal/model"
	"github.com/t77yq/benchconsole/internal/monitor"
)

// Baseline prints a resolved network baseline
func Baseline(w io.Writer, b model.NetworkBaseline) {
	t := newTable(w)
	t.SetTitle("Network baseline")
	t.AppendRow(table.Row{"Source", b.Source})
	t.AppendRow(table.Row{"Cluster", dash(b.ClusterName)})
	t.AppendRow(table.Row{"Aggregate", optional(b.AggregateBandwidthGbps, "%.2f Gbps")})
	t.AppendRow(table.Row{"Avg latency", optional(b.AvgLatencyMs, "%.2f ms")})
	if s := b.Suggestions; s != nil {
		suggestionRows(t, *s)
	}
	t.AppendRow(table.Row{"Captured", timestamp(b.CapturedAt)})
	t.Render()
}

// Profile prints the per-client results of a full profile
func Profile(w io.Writer, p *model.NetworkProfile) {
	t := newTable(w)
	t.SetTitle("Network profile " + p.ClusterName)
	t.AppendHeader(table.Row{"Client", "Hostname", "Gbps", "Latency (ms)", "Status", "Error"})
	for _, c := range p.Clients {
		t.AppendRow(table.Row{
			c.ClientID, c.ClientHostname,
			fmt.Sprintf("%.2f", c.BandwidthGbps),
			fmt.Sprintf("%.2f", c.LatencyMs),
			c.Status, dash(c.Error),
		})
	}
	t.AppendFooter(table.Row{"Aggregate", "", fmt.Sprintf("%.2f", p.AggregateBandwidthGbps), fmt.Sprintf("%.2f", p.AvgLatencyMs)})
	t.Render()
}

// Host prints the console host's own resource usage
func Host(w io.Writer, s monitor.HostStats) {
	t := newTable(w)
	t.SetTitle("Console host")
	t.AppendRow(table.Row{"CPU", fmt.Sprintf("%.1f%%", s.CPUPercent)})
	t.AppendRow(table.Row{"Memory", fmt.Sprintf("%.1f%% (%d MiB)", s.MemoryPercent, s.MemoryUsedBytes>>20)})
	t.AppendRow(table.Row{"Goroutines", s.Goroutines})
	t.Render()
}

func suggestionRows(t table.Writer, s model.Suggestions) {
	if s.EstimatedAchievableThroughputMbps <= 0 {
		t.AppendRow(table.Row{"Estimated", "no baseline"})
	} else {
		t.AppendRow(table.Row{"Estimated", fmt.Sprintf("%.0f Mbps", s.EstimatedAchievableThroughputMbps)})
	}
	t.AppendRow(table.Row{"Max theoretical", fmt.Sprintf("%.0f Mbps", s.MaxTheoreticalThroughputMbps)})
	t.AppendRow(table.Row{"Bottleneck", dash(s.Bottleneck)})
	if s.RecommendedIODepth > 0 {
		t.AppendRow(table.Row{"iodepth / numjobs / bs", fmt.Sprintf("%d / %d / %s", s.RecommendedIODepth, s.RecommendedNumJobs, s.RecommendedBlockSize)})
	}
	for _, n := range s.Notes {
		t.AppendRow(table.Row{"Note", n})
	}
}
