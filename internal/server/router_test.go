package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/benchconsole/internal/analysis"
	"github.com/t77yq/benchconsole/internal/api"
	"github.com/t77yq/benchconsole/internal/cache"
	"github.com/t77yq/benchconsole/internal/fleet"
	"github.com/t77yq/benchconsole/internal/model"
	"github.com/t77yq/benchconsole/internal/monitor"
	"github.com/t77yq/benchconsole/internal/network"
	"github.com/t77yq/benchconsole/internal/storage"
	"github.com/t77yq/benchconsole/internal/telemetry"
	"github.com/t77yq/benchconsole/internal/testutil"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	backend *testutil.Backend
	cache   *cache.Cache
	history *storage.SQLiteExecutionHistory
	router  *gin.Engine
}

func setup(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	backend := testutil.NewBackend(t)
	client, err := api.NewClient(backend.URL, logger)
	require.NoError(t, err)

	c := cache.New(logger)
	reg := prometheus.NewRegistry()
	metrics := telemetry.New(reg)

	history, err := storage.NewSQLiteExecutionHistory(logger, filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	m := monitor.NewMonitor(client, c, monitor.Config{StatusInterval: 20 * time.Millisecond, MetricsWindow: 5}, logger,
		monitor.WithRecorder(history), monitor.WithMetrics(metrics))
	t.Cleanup(m.Close)

	tracker := fleet.NewTracker(client, c, 20*time.Millisecond, logger, fleet.WithMetrics(metrics))
	runner := network.NewRunner(client, c, network.Config{SuggestionTTL: time.Minute, ProfileDuration: time.Second}, logger)
	runner.Start()
	t.Cleanup(runner.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, tracker.Start(ctx))
	t.Cleanup(tracker.Stop)

	router := SetupRouter(ctx, Deps{
		Monitor:  m,
		Tracker:  tracker,
		Network:  runner,
		History:  history,
		Gatherer: reg,
	}, logger)

	return &fixture{backend: backend, cache: c, history: history, router: router}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestSetupRouter(t *testing.T) {
	router := SetupRouter(context.Background(), Deps{Gatherer: prometheus.NewRegistry()}, zaptest.NewLogger(t))

	expected := []struct {
		method string
		path   string
	}{
		{"GET", "/healthz"},
		{"GET", "/metrics"},
		{"GET", "/api/console/executions"},
		{"POST", "/api/console/executions"},
		{"GET", "/api/console/executions/:id"},
		{"DELETE", "/api/console/executions/:id/watch"},
		{"GET", "/api/console/executions/:id/commands"},
		{"GET", "/api/console/executions/:id/baseline"},
		{"POST", "/api/console/executions/:id/stop"},
		{"POST", "/api/console/executions/:id/pause"},
		{"POST", "/api/console/executions/:id/resume"},
		{"GET", "/api/console/clients"},
		{"POST", "/api/console/clients"},
		{"GET", "/api/console/clients/:id/error"},
		{"POST", "/api/console/clients/:id/deploy"},
		{"POST", "/api/console/clients/:id/stop-agent"},
		{"DELETE", "/api/console/clients/:id"},
		{"POST", "/api/console/fleet/health"},
		{"POST", "/api/console/fleet/deploy"},
		{"POST", "/api/console/fleet/ceph-config/:cluster"},
		{"GET", "/api/console/clusters"},
		{"GET", "/api/console/clusters/:name/health"},
		{"GET", "/api/console/network/:cluster/baseline"},
		{"GET", "/api/console/network/:cluster/suggestion"},
		{"GET", "/api/console/network/:cluster/profile"},
		{"POST", "/api/console/network/:cluster/profile"},
		{"DELETE", "/api/console/network/:cluster/profile"},
		{"GET", "/api/console/workloads"},
		{"POST", "/api/console/workloads/:name/baseline"},
		{"GET", "/api/console/history"},
		{"GET", "/api/console/host"},
		{"GET", "/api/console/jobs"},
	}

	routes := router.Routes()
	registered := make(map[string]bool, len(routes))
	for _, r := range routes {
		registered[r.Method+" "+r.Path] = true
	}
	for _, e := range expected {
		assert.True(t, registered[e.method+" "+e.path], "route %s %s not registered", e.method, e.path)
	}
	assert.Len(t, routes, len(expected))
}

func TestHandlers(t *testing.T) {
	t.Run("Healthz", func(t *testing.T) {
		f := setup(t)
		w := f.do(t, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("ExecutionViewStartsObserving", func(t *testing.T) {
		f := setup(t)
		f.backend.PutExecution(model.Execution{ID: "exec-1", Status: model.ExecutionStatusRunning})

		w := f.do(t, http.MethodGet, "/api/console/executions/exec-1", "")
		assert.Contains(t, []int{http.StatusOK, http.StatusAccepted}, w.Code)

		require.Eventually(t, func() bool {
			w := f.do(t, http.MethodGet, "/api/console/executions/exec-1", "")
			if w.Code != http.StatusOK {
				return false
			}
			var view monitor.View
			if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
				return false
			}
			return view.Observing && view.Status == model.ExecutionStatusRunning
		}, waitFor, tick)

		w = f.do(t, http.MethodDelete, "/api/console/executions/exec-1/watch", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("StopOnFinishedExecutionIsBadRequest", func(t *testing.T) {
		f := setup(t)
		key := cache.ExecutionKey("exec-2")
		f.cache.Put(key, f.cache.Issue(key), &model.Execution{ID: "exec-2", Status: model.ExecutionStatusCompleted})

		w := f.do(t, http.MethodPost, "/api/console/executions/exec-2/stop", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "error")
		assert.Zero(t, f.backend.Calls("execution-command"))
	})

	t.Run("StartExecutionRequiresWorkload", func(t *testing.T) {
		f := setup(t)
		w := f.do(t, http.MethodPost, "/api/console/executions", `{"name":"no workload"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, f.backend.Calls("start-execution"))
	})

	t.Run("ClientRows", func(t *testing.T) {
		f := setup(t)
		f.backend.PutClients(model.Client{ID: "client-01", Hostname: "10.0.0.1", Status: model.ClientStatusOnline})

		require.Eventually(t, func() bool {
			w := f.do(t, http.MethodGet, "/api/console/clients", "")
			if w.Code != http.StatusOK {
				return false
			}
			var resp struct {
				Clients []fleet.Row `json:"clients"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				return false
			}
			return len(resp.Clients) == 1 && resp.Clients[0].Phase == fleet.PhaseOnline
		}, waitFor, tick, "rows appear once the tracker lists the roster")
	})

	t.Run("RegisterEmptyBatch", func(t *testing.T) {
		f := setup(t)
		w := f.do(t, http.MethodPost, "/api/console/clients", `{"clients":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, f.backend.Registered())
	})

	t.Run("UnknownClientError", func(t *testing.T) {
		f := setup(t)
		w := f.do(t, http.MethodGet, "/api/console/clients/client-09/error", "")
		assert.Contains(t, []int{http.StatusNotFound, http.StatusServiceUnavailable}, w.Code)
	})

	t.Run("MissingBaselineIsNotFound", func(t *testing.T) {
		f := setup(t)
		w := f.do(t, http.MethodGet, "/api/console/network/ceph-a/baseline?storage_type=block", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("SuggestionBecomesBaseline", func(t *testing.T) {
		f := setup(t)
		f.backend.PutSuggestion("ceph-a", model.SuggestionResponse{
			ClusterName: "ceph-a",
			ClientCount: 2,
			Suggestions: model.Suggestions{
				MaxTheoreticalThroughputMbps:      10000,
				EstimatedAchievableThroughputMbps: 8000,
				Bottleneck:                        "network",
			},
		})

		w := f.do(t, http.MethodGet, "/api/console/network/ceph-a/suggestion?storage_type=block", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = f.do(t, http.MethodGet, "/api/console/network/ceph-a/baseline?storage_type=block", "")
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	})

	t.Run("ExecutionBaselinePrefersRecordedOne", func(t *testing.T) {
		f := setup(t)
		f.backend.PutSuggestion("ceph-a", model.SuggestionResponse{
			ClusterName: "ceph-a",
			Suggestions: model.Suggestions{MaxTheoreticalThroughputMbps: 10000, EstimatedAchievableThroughputMbps: 8000},
		})
		agg := 12.0
		f.backend.PutExecution(model.Execution{ID: "exec-5", ClusterName: "ceph-a", Status: model.ExecutionStatusRunning})
		f.backend.PutExecution(model.Execution{
			ID:              "exec-6",
			ClusterName:     "ceph-a",
			Status:          model.ExecutionStatusRunning,
			NetworkBaseline: &model.NetworkBaseline{Source: network.SourceProfile, AggregateBandwidthGbps: &agg},
		})

		w := f.do(t, http.MethodGet, "/api/console/network/ceph-a/suggestion?storage_type=block", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		for _, id := range []string{"exec-5", "exec-6"} {
			require.Eventually(t, func() bool {
				return f.do(t, http.MethodGet, "/api/console/executions/"+id, "").Code == http.StatusOK
			}, waitFor, tick)
		}

		var b model.NetworkBaseline
		w = f.do(t, http.MethodGet, "/api/console/executions/exec-5/baseline?storage_type=block", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
		assert.Equal(t, network.SourceSuggestion, b.Source)

		w = f.do(t, http.MethodGet, "/api/console/executions/exec-6/baseline?storage_type=block", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b))
		assert.Equal(t, network.SourceProfile, b.Source)
		require.NotNil(t, b.AggregateBandwidthGbps)
		assert.Equal(t, 12.0, *b.AggregateBandwidthGbps)

		w = f.do(t, http.MethodGet, "/api/console/executions/exec-7/baseline", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("ProfileRunReportsStatus", func(t *testing.T) {
		f := setup(t)
		w := f.do(t, http.MethodPost, "/api/console/network/ceph-a/profile?storage_type=block", "")
		assert.Equal(t, http.StatusAccepted, w.Code)

		w = f.do(t, http.MethodGet, "/api/console/network/ceph-a/profile?storage_type=block", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status"`)

		w = f.do(t, http.MethodDelete, "/api/console/network/ceph-a/profile?storage_type=block", "")
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("History", func(t *testing.T) {
		f := setup(t)
		ctx := context.Background()
		for i := 1; i <= 3; i++ {
			exec := model.Execution{
				ID:          fmt.Sprintf("exec-%d", i),
				Name:        fmt.Sprintf("run %d", i),
				ClusterName: "ceph-a",
				Status:      model.ExecutionStatusCompleted,
			}
			require.NoError(t, f.history.Record(ctx, exec, analysis.Analyze(analysis.FromExecution(&exec))))
		}

		w := f.do(t, http.MethodGet, "/api/console/history?cluster=ceph-a&limit=2", "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp struct {
			Records []storage.ExecutionRecord `json:"records"`
			Total   int                       `json:"total"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Records, 2)
		assert.Equal(t, 3, resp.Total)

		w = f.do(t, http.MethodGet, "/api/console/history?limit=0", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("UnconfiguredComponent", func(t *testing.T) {
		f := setup(t)
		w := f.do(t, http.MethodGet, "/api/console/jobs", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("Metrics", func(t *testing.T) {
		f := setup(t)
		w := f.do(t, http.MethodGet, "/metrics", "")
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"BackendNotFound", &api.Error{StatusCode: http.StatusNotFound}, http.StatusNotFound},
		{"BackendConflict", &api.Error{StatusCode: http.StatusConflict}, http.StatusConflict},
		{"BackendFailure", &api.Error{StatusCode: http.StatusInternalServerError}, http.StatusBadGateway},
		{"Transition", fmt.Errorf("stop: %w", monitor.ErrInvalidTransition), http.StatusBadRequest},
		{"Units", model.ErrInconsistentUnits, http.StatusBadRequest},
		{"NoRoster", fleet.ErrNoRoster, http.StatusServiceUnavailable},
		{"NoBaseline", network.ErrNoBaseline, http.StatusNotFound},
		{"Other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}
