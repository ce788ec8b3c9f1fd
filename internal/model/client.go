package model

// ClientStatus represents the connectivity of a benchmark agent
type ClientStatus string

const (
	ClientStatusUnknown     ClientStatus = "unknown"
	ClientStatusOnline      ClientStatus = "online"
	ClientStatusOffline     ClientStatus = "offline"
	ClientStatusBusy        ClientStatus = "busy"
	ClientStatusError       ClientStatus = "error"
	ClientStatusUnreachable ClientStatus = "unreachable"
)

// Terminal deployment statuses. Any other non-empty value means a deployment is in progress.
const (
	DeploymentSuccess = "success"
	DeploymentFailed  = "failed"
)

// Client represents one benchmark agent host
type Client struct {
	ID                 string       `json:"id"`
	Hostname           string       `json:"hostname"`
	SSHUser            string       `json:"ssh_user,omitempty"`
	SSHPort            int          `json:"ssh_port,omitempty"`
	AgentPort          int          `json:"agent_port,omitempty"`
	Tags               []string     `json:"tags,omitempty"`
	Status             ClientStatus `json:"status"`
	AgentVersion       string       `json:"agent_version,omitempty"`
	LastHeartbeat      *Timestamp   `json:"last_heartbeat,omitempty"`
	ErrorMessage       string       `json:"error_message,omitempty"`
	DeploymentStatus   string       `json:"deployment_status,omitempty"`
	DeploymentStep     string       `json:"deployment_step,omitempty"`
	CurrentExecutionID string       `json:"current_execution_id,omitempty"`
}

// ClientList is the roster response
type ClientList struct {
	Clients []Client `json:"clients"`
	Total   int      `json:"total"`
	Online  int      `json:"online"`
	Offline int      `json:"offline"`
}

// Find returns the client with the given id.
func (l *ClientList) Find(id string) (Client, bool) {
	if l == nil {
		return Client{}, false
	}
	for _, c := range l.Clients {
		if c.ID == id {
			return c, true
		}
	}
	return Client{}, false
}

// SSHCredentials are the connection settings a client entry may inherit
type SSHCredentials struct {
	User     string `json:"ssh_user,omitempty" yaml:"ssh_user"`
	KeyPath  string `json:"ssh_key_path,omitempty" yaml:"ssh_key_path"`
	Password string `json:"ssh_password,omitempty" yaml:"ssh_password"`
	Port     int    `json:"ssh_port,omitempty" yaml:"ssh_port"`
}

// ClientEntry describes one host to register
type ClientEntry struct {
	ID             string   `json:"id,omitempty" yaml:"id"`
	Hostname       string   `json:"hostname" yaml:"hostname"`
	AgentPort      int      `json:"agent_port,omitempty" yaml:"agent_port"`
	Tags           []string `json:"tags,omitempty" yaml:"tags"`
	SSHCredentials `yaml:",inline"`
}

// RegisterClientsRequest is the batch registration body
type RegisterClientsRequest struct {
	Clients        []ClientEntry  `json:"clients"`
	Defaults       SSHCredentials `json:"defaults"`
	DeployAgent    bool           `json:"deploy_agent"`
	PushCephConfig bool           `json:"push_ceph_config"`
	ClusterName    string         `json:"cluster_name,omitempty"`
}

// DeploymentTicket is the initial deployment tracking entry for one client
type DeploymentTicket struct {
	ClientID string `json:"client_id"`
	Status   string `json:"status,omitempty"`
}

// RegisterClientsResponse is the batch registration result
type RegisterClientsResponse struct {
	Message    string             `json:"message,omitempty"`
	Added      []string           `json:"added,omitempty"`
	Skipped    []string           `json:"skipped,omitempty"`
	Total      int                `json:"total"`
	Deployment []DeploymentTicket `json:"deployment,omitempty"`
}

// ActionResponse is the generic acknowledgement of a fire-and-forget command
type ActionResponse struct {
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}
