package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/t77yq/benchconsole/internal/model"
)

// ListClusters fetches all registered clusters
func (c *Client) ListClusters(ctx context.Context) (*model.ClusterList, error) {
	var out model.ClusterList
	if err := c.do(ctx, http.MethodGet, "/clusters/", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list clusters: %w", err)
	}
	return &out, nil
}

// CreateCluster registers a cluster
func (c *Client) CreateCluster(ctx context.Context, cluster model.Cluster) error {
	if err := c.do(ctx, http.MethodPost, "/clusters/", nil, cluster, nil); err != nil {
		return fmt.Errorf("failed to create cluster %s: %w", cluster.Name, err)
	}
	return nil
}

// DiscoverCluster probes an installer node for connection details
func (c *Client) DiscoverCluster(ctx context.Context, node model.InstallerNode) (*model.Discovery, error) {
	var out model.Discovery
	if err := c.do(ctx, http.MethodPost, "/clusters/discover/", nil, node, &out); err != nil {
		return nil, fmt.Errorf("failed to discover cluster on %s: %w", node.Host, err)
	}
	return &out, nil
}

// ClusterHealth fetches the health summary of a cluster
func (c *Client) ClusterHealth(ctx context.Context, name string) (*model.ClusterHealth, error) {
	var out model.ClusterHealth
	if err := c.do(ctx, http.MethodGet, "/clusters/"+pathEscape(name)+"/health", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get health of cluster %s: %w", name, err)
	}
	return &out, nil
}

// RunClusterCommand runs a CLI command on the cluster's installer node
func (c *Client) RunClusterCommand(ctx context.Context, name, command string) (*model.CommandResult, error) {
	body := struct {
		Command string `json:"command"`
	}{Command: command}

	var out model.CommandResult
	if err := c.do(ctx, http.MethodPost, "/clusters/"+pathEscape(name)+"/run-command", nil, body, &out); err != nil {
		return nil, fmt.Errorf("failed to run command on cluster %s: %w", name, err)
	}
	return &out, nil
}

// DeleteCluster removes a cluster
func (c *Client) DeleteCluster(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodDelete, "/clusters/"+pathEscape(name), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete cluster %s: %w", name, err)
	}
	return nil
}

// RunPrechecks runs the selected prechecks against a cluster and waits for the report
func (c *Client) RunPrechecks(ctx context.Context, req model.PrecheckRequest) (*model.PrecheckReport, error) {
	var out model.PrecheckReport
	if err := c.do(ctx, http.MethodPost, "/prechecks/run", nil, req, &out); err != nil {
		return nil, fmt.Errorf("failed to run prechecks for %s: %w", req.ClusterName, err)
	}
	return &out, nil
}
