package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/t77yq/benchconsole/internal/model"
)

// ListWorkloads fetches all workload definitions
func (c *Client) ListWorkloads(ctx context.Context) (*model.WorkloadList, error) {
	var out model.WorkloadList
	if err := c.do(ctx, http.MethodGet, "/workloads/", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list workloads: %w", err)
	}
	return &out, nil
}

// GetWorkload fetches one workload definition
func (c *Client) GetWorkload(ctx context.Context, name string) (*model.Workload, error) {
	var out model.Workload
	if err := c.do(ctx, http.MethodGet, "/workloads/"+pathEscape(name), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get workload %s: %w", name, err)
	}
	return &out, nil
}

// CreateWorkload stores a new workload definition
func (c *Client) CreateWorkload(ctx context.Context, w model.Workload) error {
	if err := c.do(ctx, http.MethodPost, "/workloads/", nil, w, nil); err != nil {
		return fmt.Errorf("failed to create workload %s: %w", w.Name, err)
	}
	return nil
}

// UpdateWorkload replaces a workload definition
func (c *Client) UpdateWorkload(ctx context.Context, w model.Workload) error {
	if err := c.do(ctx, http.MethodPut, "/workloads/"+pathEscape(w.Name), nil, w, nil); err != nil {
		return fmt.Errorf("failed to update workload %s: %w", w.Name, err)
	}
	return nil
}

// DeleteWorkload removes a workload definition
func (c *Client) DeleteWorkload(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodDelete, "/workloads/"+pathEscape(name), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete workload %s: %w", name, err)
	}
	return nil
}
