package model

import (
	"encoding/json"
)

// workloadKeys are the definition keys the console reads itself
var workloadKeys = []string{"name", "description", "cluster_name", "storage_type", "network_baseline"}

// Workload is a benchmark workload definition. Fields the console does not
// interpret are carried in Extra and written back unchanged.
type Workload struct {
	Name            string           `json:"name" yaml:"name"`
	Description     string           `json:"description,omitempty" yaml:"description,omitempty"`
	ClusterName     string           `json:"cluster_name,omitempty" yaml:"cluster_name,omitempty"`
	StorageType     string           `json:"storage_type,omitempty" yaml:"storage_type,omitempty"`
	NetworkBaseline *NetworkBaseline `json:"network_baseline,omitempty" yaml:"network_baseline,omitempty"`
	Extra           map[string]any   `json:"-" yaml:",inline"`
}

// MarshalJSON implements json.Marshaler
func (w Workload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(w.Extra)+len(workloadKeys))
	for k, v := range w.Extra {
		out[k] = v
	}
	out["name"] = w.Name
	if w.Description != "" {
		out["description"] = w.Description
	}
	if w.ClusterName != "" {
		out["cluster_name"] = w.ClusterName
	}
	if w.StorageType != "" {
		out["storage_type"] = w.StorageType
	}
	if w.NetworkBaseline != nil {
		out["network_baseline"] = w.NetworkBaseline
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler
func (w *Workload) UnmarshalJSON(data []byte) error {
	type plain Workload
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range workloadKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		p.Extra = raw
	}
	*w = Workload(p)
	return nil
}

// WorkloadList is the workload listing response
type WorkloadList struct {
	Workloads []Workload `json:"workloads"`
	Total     int        `json:"total"`
	Templates int        `json:"templates"`
	Custom    int        `json:"custom"`
}
