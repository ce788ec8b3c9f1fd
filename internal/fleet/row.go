package fleet

import "github.com/t77yq/benchconsole/internal/model"

// errorPreviewLength bounds the inline error text of a row
const errorPreviewLength = 60

// Row is one rendered line of the client roster
type Row struct {
	ID                 string             `json:"id"`
	Hostname           string             `json:"hostname"`
	Phase              Phase              `json:"phase"`
	Symbol             string             `json:"symbol"`
	Status             model.ClientStatus `json:"status"`
	DeploymentStatus   string             `json:"deployment_status,omitempty"`
	DeploymentStep     string             `json:"deployment_step,omitempty"`
	Detail             string             `json:"detail,omitempty"`
	HasError           bool               `json:"has_error"`
	AgentVersion       string             `json:"agent_version,omitempty"`
	CurrentExecutionID string             `json:"current_execution_id,omitempty"`
	LastHeartbeat      *model.Timestamp   `json:"last_heartbeat,omitempty"`
}

// RowFor renders one client. seeded marks a client whose deployment was
// just requested and not yet confirmed by the roster.
func RowFor(c model.Client, seeded bool) Row {
	phase := Present(c)
	if seeded && phase != PhaseDeploying {
		phase = PhaseDeploying
	}

	row := Row{
		ID:                 c.ID,
		Hostname:           c.Hostname,
		Phase:              phase,
		Symbol:             phase.Symbol(),
		Status:             c.Status,
		DeploymentStatus:   c.DeploymentStatus,
		DeploymentStep:     c.DeploymentStep,
		AgentVersion:       c.AgentVersion,
		CurrentExecutionID: c.CurrentExecutionID,
		LastHeartbeat:      c.LastHeartbeat,
	}

	switch phase {
	case PhaseDeploying:
		switch {
		case c.DeploymentStep != "":
			row.Detail = c.DeploymentStep
		case c.DeploymentStatus != "":
			row.Detail = c.DeploymentStatus
		default:
			row.Detail = "queued"
		}
	case PhaseError:
		row.HasError = true
		row.Detail = model.Truncate(model.ErrorText(c.ErrorMessage), errorPreviewLength)
	default:
		if c.DeploymentStatus == model.DeploymentFailed {
			row.HasError = c.ErrorMessage != ""
			row.Detail = model.Truncate(model.ErrorText(c.ErrorMessage), errorPreviewLength)
		}
	}
	return row
}
