// Package server exposes the console's derived views and commands as JSON.
package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/t77yq/benchconsole/internal/fleet"
	"github.com/t77yq/benchconsole/internal/inventory"
	"github.com/t77yq/benchconsole/internal/monitor"
	"github.com/t77yq/benchconsole/internal/network"
	"github.com/t77yq/benchconsole/internal/scheduler"
	"github.com/t77yq/benchconsole/internal/storage"
	"github.com/t77yq/benchconsole/internal/workload"
)

// Deps are the components the routes are served from
type Deps struct {
	Monitor   *monitor.Monitor
	Tracker   *fleet.Tracker
	Network   *network.Runner
	Clusters  *inventory.Clusters
	Workloads *workload.Workloads
	History   storage.ExecutionHistory
	Host      *monitor.HostCollector
	Scheduler *scheduler.CronScheduler
	Gatherer  prometheus.Gatherer
}

// SetupRouter builds the view server. ctx bounds the pollers started on behalf of requests.
func SetupRouter(ctx context.Context, d Deps, logger *zap.Logger) *gin.Engine {
	h := &handlers{ctx: ctx, deps: d, logger: logger.Named("server")}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	r.GET("/healthz", h.healthz)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/console")
	{
		api.GET("/executions", h.listExecutions)
		api.POST("/executions", h.startExecution)
		api.GET("/executions/:id", h.executionView)
		api.DELETE("/executions/:id/watch", h.unobserve)
		api.GET("/executions/:id/commands", h.executionCommands)
		api.GET("/executions/:id/baseline", h.executionBaseline)
		api.POST("/executions/:id/stop", h.stopExecution)
		api.POST("/executions/:id/pause", h.pauseExecution)
		api.POST("/executions/:id/resume", h.resumeExecution)

		api.GET("/clients", h.clientRows)
		api.POST("/clients", h.registerClients)
		api.GET("/clients/:id/error", h.clientError)
		api.POST("/clients/:id/deploy", h.deployClient)
		api.POST("/clients/:id/stop-agent", h.stopAgent)
		api.DELETE("/clients/:id", h.deleteClient)
		api.POST("/fleet/health", h.checkFleetHealth)
		api.POST("/fleet/deploy", h.deployFleet)
		api.POST("/fleet/ceph-config/:cluster", h.pushCephConfig)

		api.GET("/clusters", h.listClusters)
		api.GET("/clusters/:name/health", h.clusterHealth)

		api.GET("/network/:cluster/baseline", h.networkBaseline)
		api.GET("/network/:cluster/suggestion", h.networkSuggestion)
		api.GET("/network/:cluster/profile", h.profileStatus)
		api.POST("/network/:cluster/profile", h.runProfile)
		api.DELETE("/network/:cluster/profile", h.closeProfile)

		api.GET("/workloads", h.listWorkloads)
		api.POST("/workloads/:name/baseline", h.attachBaseline)

		api.GET("/history", h.listHistory)
		api.GET("/host", h.hostStats)
		api.GET("/jobs", h.listJobs)
	}

	return r
}

// requestLogger logs each request at debug level
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Handled request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
