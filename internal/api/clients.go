package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/t77yq/benchconsole/internal/model"
)

// ListClients fetches the client roster
func (c *Client) ListClients(ctx context.Context) (*model.ClientList, error) {
	var out model.ClientList
	if err := c.do(ctx, http.MethodGet, "/clients/", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return &out, nil
}

// RegisterClients registers a batch of hosts
func (c *Client) RegisterClients(ctx context.Context, req model.RegisterClientsRequest) (*model.RegisterClientsResponse, error) {
	var out model.RegisterClientsResponse
	if err := c.do(ctx, http.MethodPost, "/clients/", nil, req, &out); err != nil {
		return nil, fmt.Errorf("failed to register clients: %w", err)
	}
	return &out, nil
}

// CheckAllClientsHealth asks the backend to probe every agent
func (c *Client) CheckAllClientsHealth(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/clients/health/all", nil, nil, nil); err != nil {
		return fmt.Errorf("failed to check client health: %w", err)
	}
	return nil
}

// DeployAllClients triggers agent deployment on every client
func (c *Client) DeployAllClients(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/clients/deploy/all", nil, nil, nil); err != nil {
		return fmt.Errorf("failed to deploy all clients: %w", err)
	}
	return nil
}

// DeployClient triggers agent deployment on one client
func (c *Client) DeployClient(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/clients/"+pathEscape(id)+"/deploy", nil, nil, nil); err != nil {
		return fmt.Errorf("failed to deploy client %s: %w", id, err)
	}
	return nil
}

// StopAgent stops the agent on one client
func (c *Client) StopAgent(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodPost, "/clients/"+pathEscape(id)+"/stop-agent", nil, nil, nil); err != nil {
		return fmt.Errorf("failed to stop agent on client %s: %w", id, err)
	}
	return nil
}

// DeleteClient removes a client
func (c *Client) DeleteClient(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/clients/"+pathEscape(id), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete client %s: %w", id, err)
	}
	return nil
}

// PushCephConfig copies the cluster's ceph config and keyring to all clients
func (c *Client) PushCephConfig(ctx context.Context, clusterName string) error {
	if err := c.do(ctx, http.MethodPost, "/clients/push-ceph-config/"+pathEscape(clusterName), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to push ceph config of %s: %w", clusterName, err)
	}
	return nil
}
