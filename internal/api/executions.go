package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/t77yq/benchconsole/internal/model"
)

const (
	// DefaultExecutionLimit is the listing size used when none is given
	DefaultExecutionLimit = 20

	// MaxMetricsCount is the largest window the backend serves
	MaxMetricsCount = 300
)

// ListExecutions returns the most recent executions
func (c *Client) ListExecutions(ctx context.Context, limit int) (*model.ExecutionList, error) {
	if limit <= 0 {
		limit = DefaultExecutionLimit
	}
	var out model.ExecutionList
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.do(ctx, http.MethodGet, "/executions/", q, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	return &out, nil
}

// StartExecution launches a workload and returns the new execution id
func (c *Client) StartExecution(ctx context.Context, req model.StartExecutionRequest) (*model.StartExecutionResponse, error) {
	var out model.StartExecutionResponse
	if err := c.do(ctx, http.MethodPost, "/executions/", nil, req, &out); err != nil {
		return nil, fmt.Errorf("failed to start execution: %w", err)
	}
	return &out, nil
}

// GetExecution fetches one execution
func (c *Client) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	var out model.Execution
	if err := c.do(ctx, http.MethodGet, "/executions/"+pathEscape(id)+"/", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get execution %s: %w", id, err)
	}
	return &out, nil
}

// SendCommand issues stop, pause or resume
func (c *Client) SendCommand(ctx context.Context, id string, cmd model.Command) error {
	switch cmd {
	case model.CommandStop, model.CommandPause, model.CommandResume:
	default:
		return fmt.Errorf("unknown execution command %q", cmd)
	}
	path := "/executions/" + pathEscape(id) + "/" + string(cmd)
	if err := c.do(ctx, http.MethodPost, path, nil, nil, nil); err != nil {
		return fmt.Errorf("failed to %s execution %s: %w", cmd, id, err)
	}
	return nil
}

// ExecutionCommands fetches the remote command log of an execution
func (c *Client) ExecutionCommands(ctx context.Context, id string) (*model.CommandLog, error) {
	var out model.CommandLog
	if err := c.do(ctx, http.MethodGet, "/executions/"+pathEscape(id)+"/commands", nil, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get commands of execution %s: %w", id, err)
	}
	return &out, nil
}

// LatestMetrics fetches the most recent count samples, clamped to 1..MaxMetricsCount
func (c *Client) LatestMetrics(ctx context.Context, id string, count int) ([]model.MetricSample, error) {
	if count <= 0 {
		count = 1
	}
	if count > MaxMetricsCount {
		count = MaxMetricsCount
	}
	var out model.LatestMetrics
	q := url.Values{"count": {strconv.Itoa(count)}}
	if err := c.do(ctx, http.MethodGet, "/metrics/"+pathEscape(id)+"/latest/", q, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to get metrics of execution %s: %w", id, err)
	}
	return out.Metrics, nil
}
