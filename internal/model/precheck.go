package model

// Overall precheck outcomes
const (
	PrecheckPassed             = "passed"
	PrecheckPassedWithWarnings = "passed_with_warnings"
	PrecheckFailed             = "failed"
)

// PrecheckRequest selects which prechecks to run against a cluster
type PrecheckRequest struct {
	ClusterName  string `json:"cluster_name"`
	CheckCluster bool   `json:"check_cluster"`
	CheckClients bool   `json:"check_clients"`
	CheckNetwork bool   `json:"check_network"`
}

// PrecheckResult is the outcome of a single check
type PrecheckResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// PrecheckReport is the summary of a precheck run
type PrecheckReport struct {
	ExecutionID     string           `json:"execution_id"`
	DurationSeconds float64          `json:"duration_seconds"`
	OverallStatus   string           `json:"overall_status"`
	CanProceed      bool             `json:"can_proceed"`
	ClusterHealth   string           `json:"cluster_health,omitempty"`
	ClusterChecks   []PrecheckResult `json:"cluster_checks,omitempty"`
	ClientsTotal    int              `json:"clients_total"`
	ClientsOnline   int              `json:"clients_online"`
	ClientsOffline  int              `json:"clients_offline"`
	Warnings        []string         `json:"warnings,omitempty"`
	BlockingIssues  []string         `json:"blocking_issues,omitempty"`
	ProceedMessage  string           `json:"proceed_message,omitempty"`
}
