package render

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/t77yq/benchconsole/internal/fleet"
	"github.com/t77yq/benchconsole/internal/model"
)

// Clients prints the client roster
func Clients(w io.Writer, rows []fleet.Row) {
	t := newTable(w)
	t.AppendHeader(table.Row{"", "ID", "Hostname", "Phase", "Detail", "Agent", "Execution", "Heartbeat"})
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.Symbol, r.ID, r.Hostname, r.Phase, dash(r.Detail),
			dash(r.AgentVersion), dash(r.CurrentExecutionID), timestamp(r.LastHeartbeat),
		})
	}
	t.AppendFooter(table.Row{"", "Total", len(rows)})
	t.Render()
}

// Registration prints the result of a batch registration
func Registration(w io.Writer, resp *model.RegisterClientsResponse) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Client", "Result", "Deployment"})
	deployment := make(map[string]string, len(resp.Deployment))
	for _, d := range resp.Deployment {
		deployment[d.ClientID] = d.Status
	}
	for _, id := range resp.Added {
		t.AppendRow(table.Row{id, "added", dash(deployment[id])})
	}
	for _, id := range resp.Skipped {
		t.AppendRow(table.Row{id, "skipped", "-"})
	}
	t.Render()
}
