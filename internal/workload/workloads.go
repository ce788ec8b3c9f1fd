package workload

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/t77yq/benchconsole/internal/api"
	"github.com/t77yq/benchconsole/internal/cache"
	"github.com/t77yq/benchconsole/internal/model"
	"github.com/t77yq/benchconsole/internal/telemetry"
)

// WorkloadAPI is the part of the backend that stores workload definitions
type WorkloadAPI interface {
	ListWorkloads(ctx context.Context) (*model.WorkloadList, error)
	GetWorkload(ctx context.Context, name string) (*model.Workload, error)
	CreateWorkload(ctx context.Context, w model.Workload) error
	UpdateWorkload(ctx context.Context, w model.Workload) error
	DeleteWorkload(ctx context.Context, name string) error
}

// ApplyResult says what Apply did with one definition
type ApplyResult string

const (
	Created ApplyResult = "created"
	Updated ApplyResult = "updated"
)

// Workloads manages workload definitions on the backend
type Workloads struct {
	logger  *zap.Logger
	api     WorkloadAPI
	cache   *cache.Cache
	metrics *telemetry.Metrics
}

// NewWorkloads creates a new Workloads
func NewWorkloads(api WorkloadAPI, c *cache.Cache, metrics *telemetry.Metrics, logger *zap.Logger) *Workloads {
	return &Workloads{
		logger:  logger.Named("workloads"),
		api:     api,
		cache:   c,
		metrics: metrics,
	}
}

// List fetches every workload definition and stores the list in the cache
func (w *Workloads) List(ctx context.Context) (*model.WorkloadList, error) {
	seq := w.cache.Issue(cache.WorkloadsKey)
	list, err := w.api.ListWorkloads(ctx)
	w.metrics.Polled(cache.WorkloadsKey.Resource(), err)
	if err != nil {
		w.cache.Fail(cache.WorkloadsKey, seq, err)
		return nil, err
	}
	w.cache.Put(cache.WorkloadsKey, seq, list)
	return list, nil
}

// Get fetches one workload definition
func (w *Workloads) Get(ctx context.Context, name string) (*model.Workload, error) {
	return w.api.GetWorkload(ctx, name)
}

// Apply creates the workload, or replaces it when one with the same name exists
func (w *Workloads) Apply(ctx context.Context, def model.Workload) (ApplyResult, error) {
	if def.Name == "" {
		return "", ErrUnnamed
	}

	result := Created
	err := w.api.CreateWorkload(ctx, def)
	if errors.Is(err, api.ErrConflict) {
		result = Updated
		err = w.api.UpdateWorkload(ctx, def)
	}
	w.metrics.Command("apply-workload", err)
	if err != nil {
		w.logger.Error("Failed to apply workload", zap.String("workload", def.Name), zap.Error(err))
		return "", err
	}

	w.logger.Info("Workload applied", zap.String("workload", def.Name), zap.String("result", string(result)))
	w.cache.Invalidate(cache.WorkloadsKey)
	return result, nil
}

// Delete removes a workload definition
func (w *Workloads) Delete(ctx context.Context, name string) error {
	err := w.api.DeleteWorkload(ctx, name)
	w.metrics.Command("delete-workload", err)
	if err != nil {
		w.logger.Error("Failed to delete workload", zap.String("workload", name), zap.Error(err))
		return err
	}
	w.cache.Invalidate(cache.WorkloadsKey)
	return nil
}

// AttachBaseline stores a baseline snapshot on a workload. The rest of the
// definition is written back as the backend returned it.
func (w *Workloads) AttachBaseline(ctx context.Context, name string, baseline model.NetworkBaseline) (*model.Workload, error) {
	def, err := w.api.GetWorkload(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to attach baseline: %w", err)
	}

	def.NetworkBaseline = &baseline
	err = w.api.UpdateWorkload(ctx, *def)
	w.metrics.Command("attach-baseline", err)
	if err != nil {
		w.logger.Error("Failed to attach baseline", zap.String("workload", name), zap.Error(err))
		return nil, fmt.Errorf("failed to attach baseline: %w", err)
	}

	w.logger.Info("Baseline attached",
		zap.String("workload", name),
		zap.String("source", baseline.Source),
		zap.String("cluster", baseline.ClusterName))
	w.cache.Invalidate(cache.WorkloadsKey)
	return def, nil
}
