package fleet

import (
	"fmt"
	"strings"

	"github.com/t77yq/benchconsole/internal/model"
)

// Batch is a set of hosts to register in one request
type Batch struct {
	Entries        []model.ClientEntry  `json:"clients" yaml:"clients"`
	Defaults       model.SSHCredentials `json:"defaults" yaml:"defaults"`
	DeployAgent    bool                 `json:"deploy_agent" yaml:"deploy_agent"`
	PushCephConfig bool                 `json:"push_ceph_config" yaml:"push_ceph_config"`
	ClusterName    string               `json:"cluster_name,omitempty" yaml:"cluster_name"`
}

// Prepare drops blank and duplicate hostnames, assigns missing ids by
// position (client-01, client-02, ...) and fills unset SSH settings from defaults.
func Prepare(entries []model.ClientEntry, defaults model.SSHCredentials) []model.ClientEntry {
	seen := make(map[string]bool, len(entries))
	out := make([]model.ClientEntry, 0, len(entries))

	for _, e := range entries {
		e.Hostname = strings.TrimSpace(e.Hostname)
		if e.Hostname == "" || seen[e.Hostname] {
			continue
		}
		seen[e.Hostname] = true

		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			e.ID = fmt.Sprintf("client-%02d", len(out)+1)
		}
		e.SSHCredentials = inherit(e.SSHCredentials, defaults)
		out = append(out, e)
	}
	return out
}

func inherit(c, defaults model.SSHCredentials) model.SSHCredentials {
	if c.User == "" {
		c.User = defaults.User
	}
	if c.KeyPath == "" && c.Password == "" {
		c.KeyPath = defaults.KeyPath
		c.Password = defaults.Password
	}
	if c.Port == 0 {
		c.Port = defaults.Port
	}
	return c
}
