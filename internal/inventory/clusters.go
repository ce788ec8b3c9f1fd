package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/karlseguin/ccache"
	"go.uber.org/zap"

	"github.com/t77yq/benchconsole/internal/cache"
	"github.com/t77yq/benchconsole/internal/model"
	"github.com/t77yq/benchconsole/internal/telemetry"
)

// DefaultHealthTTL is how long a cluster health summary is reused
const DefaultHealthTTL = 15 * time.Second

// ClusterAPI is the part of the backend the inventory talks to
type ClusterAPI interface {
	ListClusters(ctx context.Context) (*model.ClusterList, error)
	CreateCluster(ctx context.Context, cluster model.Cluster) error
	DiscoverCluster(ctx context.Context, node model.InstallerNode) (*model.Discovery, error)
	ClusterHealth(ctx context.Context, name string) (*model.ClusterHealth, error)
	RunClusterCommand(ctx context.Context, name, command string) (*model.CommandResult, error)
	DeleteCluster(ctx context.Context, name string) error
	RunPrechecks(ctx context.Context, req model.PrecheckRequest) (*model.PrecheckReport, error)
}

// Option configures Clusters
type Option func(*Clusters)

// WithHealthTTL overrides how long health summaries are cached
func WithHealthTTL(ttl time.Duration) Option {
	return func(c *Clusters) {
		if ttl > 0 {
			c.healthTTL = ttl
		}
	}
}

// WithMetrics attaches prometheus counters
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(c *Clusters) {
		c.metrics = metrics
	}
}

// Clusters is the cluster inventory. The list lives in the resource cache
// under ClustersKey; health summaries are kept briefly in a local cache.
type Clusters struct {
	logger    *zap.Logger
	api       ClusterAPI
	cache     *cache.Cache
	metrics   *telemetry.Metrics
	health    *ccache.Cache
	healthTTL time.Duration
}

// NewClusters creates a new cluster inventory
func NewClusters(api ClusterAPI, c *cache.Cache, logger *zap.Logger, opts ...Option) *Clusters {
	cl := &Clusters{
		logger:    logger.Named("inventory"),
		api:       api,
		cache:     c,
		health:    ccache.New(ccache.Configure().MaxSize(1000).ItemsToPrune(100)),
		healthTTL: DefaultHealthTTL,
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

// Stop releases the health cache
func (c *Clusters) Stop() {
	c.health.Stop()
}

// List fetches the cluster list and stores it in the resource cache
func (c *Clusters) List(ctx context.Context) (*model.ClusterList, error) {
	seq := c.cache.Issue(cache.ClustersKey)
	list, err := c.api.ListClusters(ctx)
	c.metrics.Polled(cache.ClustersKey.Resource(), err)
	if err != nil {
		c.cache.Fail(cache.ClustersKey, seq, err)
		return nil, err
	}
	c.cache.Put(cache.ClustersKey, seq, list)
	return list, nil
}

// Cached returns the last known cluster list without a round trip
func (c *Clusters) Cached() (*model.ClusterList, bool) {
	return cache.Value[*model.ClusterList](c.cache, cache.ClustersKey)
}

// Get returns a cluster from the last known list, fetching the list if none is cached
func (c *Clusters) Get(ctx context.Context, name string) (model.Cluster, error) {
	list, ok := c.Cached()
	if !ok {
		var err error
		if list, err = c.List(ctx); err != nil {
			return model.Cluster{}, err
		}
	}
	for _, cluster := range list.Clusters {
		if cluster.Name == name {
			return cluster, nil
		}
	}
	return model.Cluster{}, fmt.Errorf("%w: %s", ErrClusterNotFound, name)
}

// Create registers a cluster
func (c *Clusters) Create(ctx context.Context, cluster model.Cluster) error {
	err := c.api.CreateCluster(ctx, cluster)
	c.metrics.Command("create-cluster", err)
	if err != nil {
		c.logger.Error("Failed to create cluster", zap.String("cluster", cluster.Name), zap.Error(err))
		return err
	}
	c.logger.Info("Cluster registered", zap.String("cluster", cluster.Name))
	c.refresh(ctx)
	return nil
}

// Discover probes an installer node for connection details. Nothing is stored.
func (c *Clusters) Discover(ctx context.Context, node model.InstallerNode) (*model.Discovery, error) {
	d, err := c.api.DiscoverCluster(ctx, node)
	c.metrics.Command("discover-cluster", err)
	return d, err
}

// Health returns the health summary of a cluster, reusing one fetched within the TTL
func (c *Clusters) Health(ctx context.Context, name string) (*model.ClusterHealth, error) {
	item := c.health.Get(name)
	if item != nil && !item.Expired() {
		if h, ok := item.Value().(*model.ClusterHealth); ok {
			return h, nil
		}
	}

	h, err := c.api.ClusterHealth(ctx, name)
	if err != nil {
		c.logger.Warn("Failed to get cluster health", zap.String("cluster", name), zap.Error(err))
		return nil, err
	}
	c.health.Set(name, h, c.healthTTL)
	return h, nil
}

// RunCommand runs a command on the cluster's installer node
func (c *Clusters) RunCommand(ctx context.Context, name, command string) (*model.CommandResult, error) {
	res, err := c.api.RunClusterCommand(ctx, name, command)
	c.metrics.Command("cluster-command", err)
	if err != nil {
		c.logger.Error("Failed to run cluster command",
			zap.String("cluster", name),
			zap.String("command", command),
			zap.Error(err))
		return nil, err
	}
	return res, nil
}

// Prechecks runs the backend's readiness checks for a cluster. A report that
// does not allow proceeding is returned together with ErrPrechecksBlocked.
func (c *Clusters) Prechecks(ctx context.Context, req model.PrecheckRequest) (*model.PrecheckReport, error) {
	report, err := c.api.RunPrechecks(ctx, req)
	c.metrics.Command("prechecks", err)
	if err != nil {
		c.logger.Error("Failed to run prechecks", zap.String("cluster", req.ClusterName), zap.Error(err))
		return nil, err
	}

	c.logger.Info("Prechecks finished",
		zap.String("cluster", req.ClusterName),
		zap.String("status", report.OverallStatus),
		zap.Int("warnings", len(report.Warnings)),
		zap.Int("blocking", len(report.BlockingIssues)))
	if !report.CanProceed {
		return report, fmt.Errorf("%w: %s", ErrPrechecksBlocked, req.ClusterName)
	}
	return report, nil
}

// Delete removes a cluster
func (c *Clusters) Delete(ctx context.Context, name string) error {
	err := c.api.DeleteCluster(ctx, name)
	c.metrics.Command("delete-cluster", err)
	if err != nil {
		c.logger.Error("Failed to delete cluster", zap.String("cluster", name), zap.Error(err))
		return err
	}
	c.health.Delete(name)
	c.logger.Info("Cluster deleted", zap.String("cluster", name))
	c.refresh(ctx)
	return nil
}

// refresh marks the list stale and fetches it right away
func (c *Clusters) refresh(ctx context.Context) {
	c.cache.Invalidate(cache.ClustersKey)
	if _, err := c.List(ctx); err != nil {
		c.logger.Warn("Failed to refresh cluster list", zap.Error(err))
	}
}
