package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/t77yq/benchconsole/internal/api"
	"github.com/t77yq/benchconsole/internal/fleet"
	"github.com/t77yq/benchconsole/internal/inventory"
	"github.com/t77yq/benchconsole/internal/model"
	"github.com/t77yq/benchconsole/internal/monitor"
	"github.com/t77yq/benchconsole/internal/network"
	"github.com/t77yq/benchconsole/internal/scheduler"
	"github.com/t77yq/benchconsole/internal/storage"
	"github.com/t77yq/benchconsole/internal/workload"
)

var errUnavailable = errors.New("component not configured")

type handlers struct {
	ctx    context.Context
	deps   Deps
	logger *zap.Logger
}

type listParams struct {
	Limit   int    `form:"limit,default=20"`
	Offset  int    `form:"offset,default=0"`
	Status  string `form:"status"`
	Cluster string `form:"cluster"`
}

type targetParams struct {
	StorageType string `form:"storage_type"`
	Rerun       bool   `form:"rerun"`
}

func (h *handlers) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) listExecutions(c *gin.Context) {
	if h.deps.Monitor == nil {
		h.fail(c, errUnavailable)
		return
	}
	var params listParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}
	list, err := h.deps.Monitor.List(c.Request.Context(), params.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) startExecution(c *gin.Context) {
	if h.deps.Monitor == nil {
		h.fail(c, errUnavailable)
		return
	}
	var req model.StartExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.WorkloadName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workload_name is required"})
		return
	}
	resp, err := h.deps.Monitor.StartExecution(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.deps.Monitor.Observe(h.ctx, resp.ExecutionID); err != nil {
		h.logger.Warn("Failed to observe new execution", zap.String("execution_id", resp.ExecutionID), zap.Error(err))
	}
	c.JSON(http.StatusCreated, resp)
}

// executionView starts observing the execution on first request. Until the
// first poll lands the view is returned with 202.
func (h *handlers) executionView(c *gin.Context) {
	if h.deps.Monitor == nil {
		h.fail(c, errUnavailable)
		return
	}
	id := c.Param("id")
	if err := h.deps.Monitor.Observe(h.ctx, id); err != nil {
		h.fail(c, err)
		return
	}
	view, ok := h.deps.Monitor.View(id)
	if !ok {
		c.JSON(http.StatusAccepted, view)
		return
	}
	c.JSON(http.StatusOK, view)
}

// executionBaseline resolves the baseline an execution is judged against.
// The cluster comes from the cached execution unless given as a query.
func (h *handlers) executionBaseline(c *gin.Context) {
	if h.deps.Network == nil {
		h.fail(c, errUnavailable)
		return
	}
	var params struct {
		Cluster     string `form:"cluster"`
		StorageType string `form:"storage_type"`
	}
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}
	id := c.Param("id")
	target := network.Target{Cluster: params.Cluster, StorageType: params.StorageType}
	if target.Cluster == "" && h.deps.Monitor != nil {
		if view, ok := h.deps.Monitor.View(id); ok && view.Execution != nil {
			target.Cluster = view.Execution.ClusterName
		}
	}

	b, ok := h.deps.Network.ExecutionBaseline(id, target)
	if !ok {
		h.fail(c, network.ErrNoBaseline)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handlers) unobserve(c *gin.Context) {
	if h.deps.Monitor == nil {
		h.fail(c, errUnavailable)
		return
	}
	h.deps.Monitor.Unobserve(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (h *handlers) executionCommands(c *gin.Context) {
	if h.deps.Monitor == nil {
		h.fail(c, errUnavailable)
		return
	}
	log, err := h.deps.Monitor.Commands(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func (h *handlers) stopExecution(c *gin.Context) {
	h.executionCommand(c, (*monitor.Monitor).Stop)
}

func (h *handlers) pauseExecution(c *gin.Context) {
	h.executionCommand(c, (*monitor.Monitor).Pause)
}

func (h *handlers) resumeExecution(c *gin.Context) {
	h.executionCommand(c, (*monitor.Monitor).Resume)
}

func (h *handlers) executionCommand(c *gin.Context, fn func(*monitor.Monitor, context.Context, string) error) {
	if h.deps.Monitor == nil {
		h.fail(c, errUnavailable)
		return
	}
	id := c.Param("id")
	if err := fn(h.deps.Monitor, c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	view, _ := h.deps.Monitor.View(id)
	c.JSON(http.StatusAccepted, view)
}

func (h *handlers) clientRows(c *gin.Context) {
	if h.deps.Tracker == nil {
		h.fail(c, errUnavailable)
		return
	}
	resp := gin.H{"clients": h.deps.Tracker.Rows()}
	if _, entry, ok := h.deps.Tracker.Roster(); ok {
		resp["stale"] = entry.Stale
		if entry.Err != nil {
			resp["error"] = entry.Err.Error()
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) registerClients(c *gin.Context) {
	if h.deps.Tracker == nil {
		h.fail(c, errUnavailable)
		return
	}
	var batch fleet.Batch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	resp, err := h.deps.Tracker.RegisterBatch(c.Request.Context(), batch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *handlers) clientError(c *gin.Context) {
	if h.deps.Tracker == nil {
		h.fail(c, errUnavailable)
		return
	}
	msg, err := h.deps.Tracker.ErrorMessage(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "error_message": msg})
}

func (h *handlers) deployClient(c *gin.Context) {
	h.clientCommand(c, func(t *fleet.Tracker, ctx context.Context) error { return t.Deploy(ctx, c.Param("id")) })
}

func (h *handlers) stopAgent(c *gin.Context) {
	h.clientCommand(c, func(t *fleet.Tracker, ctx context.Context) error { return t.StopAgent(ctx, c.Param("id")) })
}

func (h *handlers) deleteClient(c *gin.Context) {
	h.clientCommand(c, func(t *fleet.Tracker, ctx context.Context) error { return t.Delete(ctx, c.Param("id")) })
}

func (h *handlers) checkFleetHealth(c *gin.Context) {
	h.clientCommand(c, (*fleet.Tracker).CheckHealth)
}

func (h *handlers) deployFleet(c *gin.Context) {
	h.clientCommand(c, (*fleet.Tracker).DeployAll)
}

func (h *handlers) pushCephConfig(c *gin.Context) {
	h.clientCommand(c, func(t *fleet.Tracker, ctx context.Context) error { return t.PushCephConfig(ctx, c.Param("cluster")) })
}

func (h *handlers) clientCommand(c *gin.Context, fn func(*fleet.Tracker, context.Context) error) {
	if h.deps.Tracker == nil {
		h.fail(c, errUnavailable)
		return
	}
	if err := fn(h.deps.Tracker, c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"clients": h.deps.Tracker.Rows()})
}

func (h *handlers) listClusters(c *gin.Context) {
	if h.deps.Clusters == nil {
		h.fail(c, errUnavailable)
		return
	}
	list, err := h.deps.Clusters.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) clusterHealth(c *gin.Context) {
	if h.deps.Clusters == nil {
		h.fail(c, errUnavailable)
		return
	}
	health, err := h.deps.Clusters.Health(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, health)
}

func (h *handlers) target(c *gin.Context) (network.Target, targetParams, bool) {
	var params targetParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return network.Target{}, params, false
	}
	return network.Target{Cluster: c.Param("cluster"), StorageType: params.StorageType}, params, true
}

func (h *handlers) networkBaseline(c *gin.Context) {
	if h.deps.Network == nil {
		h.fail(c, errUnavailable)
		return
	}
	target, _, ok := h.target(c)
	if !ok {
		return
	}
	b, ok := h.deps.Network.Baseline(target)
	if !ok {
		h.fail(c, network.ErrNoBaseline)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handlers) networkSuggestion(c *gin.Context) {
	if h.deps.Network == nil {
		h.fail(c, errUnavailable)
		return
	}
	target, _, ok := h.target(c)
	if !ok {
		return
	}
	s, err := h.deps.Network.Suggestion(c.Request.Context(), target)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *handlers) profileStatus(c *gin.Context) {
	if h.deps.Network == nil {
		h.fail(c, errUnavailable)
		return
	}
	target, _, ok := h.target(c)
	if !ok {
		return
	}
	resp := gin.H{"status": h.deps.Network.Status(target)}
	if p, ok := h.deps.Network.Profile(target); ok {
		resp["profile"] = p
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) runProfile(c *gin.Context) {
	if h.deps.Network == nil {
		h.fail(c, errUnavailable)
		return
	}
	target, params, ok := h.target(c)
	if !ok {
		return
	}
	var st network.Status
	if params.Rerun {
		st = h.deps.Network.Rerun(target)
	} else {
		st = h.deps.Network.Run(target)
	}
	c.JSON(http.StatusAccepted, gin.H{"status": st})
}

func (h *handlers) closeProfile(c *gin.Context) {
	if h.deps.Network == nil {
		h.fail(c, errUnavailable)
		return
	}
	target, _, ok := h.target(c)
	if !ok {
		return
	}
	h.deps.Network.Close(target)
	c.Status(http.StatusNoContent)
}

func (h *handlers) listWorkloads(c *gin.Context) {
	if h.deps.Workloads == nil {
		h.fail(c, errUnavailable)
		return
	}
	list, err := h.deps.Workloads.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) attachBaseline(c *gin.Context) {
	if h.deps.Workloads == nil || h.deps.Network == nil {
		h.fail(c, errUnavailable)
		return
	}
	var params struct {
		Cluster     string `form:"cluster" binding:"required"`
		StorageType string `form:"storage_type"`
	}
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}
	target := network.Target{Cluster: params.Cluster, StorageType: params.StorageType}
	b, ok := h.deps.Network.Baseline(target)
	if !ok {
		h.fail(c, network.ErrNoBaseline)
		return
	}
	w, err := h.deps.Workloads.AttachBaseline(c.Request.Context(), c.Param("name"), network.Snapshot(b, target, timeNow()))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *handlers) listHistory(c *gin.Context) {
	if h.deps.History == nil {
		h.fail(c, errUnavailable)
		return
	}
	var params listParams
	if err := c.ShouldBindQuery(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
		return
	}
	if params.Limit <= 0 || params.Limit > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Limit must be between 1 and 1000"})
		return
	}
	filter := storage.HistoryFilter{Status: model.ExecutionStatus(params.Status), Cluster: params.Cluster}
	records, err := h.deps.History.List(c.Request.Context(), filter, params.Offset, params.Limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	total, err := h.deps.History.Count(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	if records == nil {
		records = []*storage.ExecutionRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "total": total})
}

func (h *handlers) hostStats(c *gin.Context) {
	if h.deps.Host == nil {
		h.fail(c, errUnavailable)
		return
	}
	stats, ok := h.deps.Host.Latest()
	if !ok {
		c.JSON(http.StatusAccepted, gin.H{})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *handlers) listJobs(c *gin.Context) {
	if h.deps.Scheduler == nil {
		h.fail(c, errUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": h.deps.Scheduler.ListJobs()})
}

// fail writes err with the status its kind maps to
func (h *handlers) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	var apiErr *api.Error
	switch {
	case errors.Is(err, errUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, api.ErrNotFound),
		errors.Is(err, fleet.ErrClientNotFound),
		errors.Is(err, inventory.ErrClusterNotFound),
		errors.Is(err, network.ErrNoBaseline),
		errors.Is(err, scheduler.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, api.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, monitor.ErrInvalidTransition),
		errors.Is(err, fleet.ErrEmptyBatch),
		errors.Is(err, workload.ErrUnnamed),
		errors.Is(err, model.ErrInconsistentUnits),
		errors.Is(err, api.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, fleet.ErrNoRoster), errors.Is(err, monitor.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
