package fleet

import "github.com/t77yq/benchconsole/internal/model"

// Phase is the single presentation state of a client
type Phase string

const (
	PhaseDeploying   Phase = "deploying"
	PhaseOnline      Phase = "online"
	PhaseBusy        Phase = "busy"
	PhaseOffline     Phase = "offline"
	PhaseUnreachable Phase = "unreachable"
	PhaseError       Phase = "error"
	PhaseUnknown     Phase = "unknown"
)

// Present derives the phase of a client. A deployment in progress wins over
// connectivity; otherwise the connectivity status decides.
func Present(c model.Client) Phase {
	if Deploying(c.DeploymentStatus) {
		return PhaseDeploying
	}
	switch c.Status {
	case model.ClientStatusOnline:
		return PhaseOnline
	case model.ClientStatusBusy:
		return PhaseBusy
	case model.ClientStatusOffline:
		return PhaseOffline
	case model.ClientStatusUnreachable:
		return PhaseUnreachable
	case model.ClientStatusError:
		return PhaseError
	}
	return PhaseUnknown
}

// Deploying reports whether a deployment status means work is in progress
func Deploying(deploymentStatus string) bool {
	return deploymentStatus != "" &&
		deploymentStatus != model.DeploymentSuccess &&
		deploymentStatus != model.DeploymentFailed
}

// Symbol is the short marker shown next to a client
func (p Phase) Symbol() string {
	switch p {
	case PhaseDeploying:
		return "~"
	case PhaseOnline:
		return "+"
	case PhaseBusy:
		return "*"
	case PhaseError:
		return "!"
	case PhaseOffline, PhaseUnreachable:
		return "-"
	}
	return "?"
}
