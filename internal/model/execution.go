package model

// ExecutionStatus represents the lifecycle state of an execution
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusPrechecks ExecutionStatus = "prechecks"
	ExecutionStatusPreparing ExecutionStatus = "preparing"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusStopping  ExecutionStatus = "stopping"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsTerminal reports whether no further transition can happen
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	}
	return false
}

// Command is a one-shot control action on an execution
type Command string

const (
	CommandStop   Command = "stop"
	CommandPause  Command = "pause"
	CommandResume Command = "resume"
)

// Allows reports whether the backend accepts cmd while the execution is in s.
func (s ExecutionStatus) Allows(cmd Command) bool {
	switch cmd {
	case CommandStop:
		switch s {
		case ExecutionStatusRunning, ExecutionStatusPaused, ExecutionStatusPrechecks, ExecutionStatusPreparing:
			return true
		}
	case CommandPause:
		return s == ExecutionStatusRunning
	case CommandResume:
		return s == ExecutionStatusPaused
	}
	return false
}

// Execution represents one benchmark run as reported by the backend
type Execution struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Status         ExecutionStatus `json:"status"`
	WorkloadName   string          `json:"workload_name,omitempty"`
	WorkloadType   string          `json:"workload_type,omitempty"`
	StorageBackend string          `json:"storage_backend,omitempty"`
	ClusterName    string          `json:"cluster_name,omitempty"`
	ClientCount    int             `json:"client_count"`

	// Aggregates reported by the backend
	TotalIOPS           float64 `json:"total_iops"`
	TotalThroughputMBps float64 `json:"total_throughput_mbps"`
	AvgLatencyUs        float64 `json:"avg_latency_us"`

	ErrorMessage    string           `json:"error_message,omitempty"`
	NetworkBaseline *NetworkBaseline `json:"network_baseline,omitempty"`

	StartedAt       *Timestamp `json:"started_at,omitempty"`
	CompletedAt     *Timestamp `json:"completed_at,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	CreatedAt       *Timestamp `json:"created_at,omitempty"`
}

// ExecutionList is the response of the execution listing endpoint
type ExecutionList struct {
	Executions []Execution `json:"executions"`
	Total      int         `json:"total"`
}

// StartExecutionRequest launches a workload against a cluster
type StartExecutionRequest struct {
	WorkloadName string `json:"workload_name"`
	Name         string `json:"name,omitempty"`
	RunPrechecks bool   `json:"run_prechecks"`
}

// StartExecutionResponse carries the id of a freshly created execution
type StartExecutionResponse struct {
	ExecutionID string          `json:"execution_id"`
	Name        string          `json:"name,omitempty"`
	Status      ExecutionStatus `json:"status,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// CommandEntry is one line of an execution's remote command log
type CommandEntry struct {
	Timestamp   Timestamp `json:"timestamp"`
	ClientID    string    `json:"client_id,omitempty"`
	Command     string    `json:"command"`
	Description string    `json:"description,omitempty"`
}

// CommandLog is the response of the execution commands endpoint
type CommandLog struct {
	Commands []CommandEntry `json:"commands"`
	Total    int            `json:"total"`
}
