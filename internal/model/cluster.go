package model

// Cluster represents one storage system under test
type Cluster struct {
	Name          string          `json:"name" yaml:"name"`
	StorageType   string          `json:"storage_type" yaml:"storage_type"`
	Backend       string          `json:"backend" yaml:"backend"`
	Ceph          *CephConnection `json:"ceph,omitempty" yaml:"ceph,omitempty"`
	InstallerNode *InstallerNode  `json:"installer_node,omitempty" yaml:"installer_node,omitempty"`
	Tags          []string        `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// CephConnection describes how clients reach a Ceph cluster
type CephConnection struct {
	Monitors    []string `json:"monitors" yaml:"monitors"`
	User        string   `json:"user,omitempty" yaml:"user"`
	KeyringPath string   `json:"keyring_path,omitempty" yaml:"keyring_path"`
	ConfPath    string   `json:"conf_path,omitempty" yaml:"conf_path"`
	Pool        string   `json:"pool,omitempty" yaml:"pool"`
	RepoURL     string   `json:"repo_url,omitempty" yaml:"repo_url"`
}

// InstallerNode is the admin host used for discovery and health probes
type InstallerNode struct {
	Host     string `json:"host" yaml:"host"`
	Username string `json:"username,omitempty" yaml:"username"`
	Password string `json:"password,omitempty" yaml:"password"`
	KeyPath  string `json:"key_path,omitempty" yaml:"key_path"`
	Port     int    `json:"port,omitempty" yaml:"port"`
}

// ClusterList is the cluster listing response
type ClusterList struct {
	Clusters []Cluster `json:"clusters"`
}

// Discovery is the result of probing an installer node
type Discovery struct {
	Monitors    []string `json:"monitors"`
	User        string   `json:"user"`
	KeyringPath string   `json:"keyring_path"`
	ConfPath    string   `json:"conf_path"`
	Pools       []string `json:"pools"`
	FSID        string   `json:"fsid"`
	Version     string   `json:"version"`
	Health      string   `json:"health"`
}

// ClusterHealth is the health summary of a cluster
type ClusterHealth struct {
	Health  string   `json:"health"`
	Cluster string   `json:"cluster"`
	Checks  []string `json:"checks"`
	State   string   `json:"state"`
}

// CommandResult is the output of a remote command run on the installer node
type CommandResult struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}
