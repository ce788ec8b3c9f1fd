package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/t77yq/benchconsole/internal/model"
)

// Backend is an in-memory stand-in for the benchmark manager REST API
type Backend struct {
	*httptest.Server

	mu          sync.Mutex
	executions  map[string]*model.Execution
	order       []string
	metrics     map[string][]model.MetricSample
	commands    map[string][]model.CommandEntry
	clients     []model.Client
	clusters    []model.Cluster
	workloads   map[string]model.Workload
	suggestions map[string]model.SuggestionResponse
	profiles    map[string]model.NetworkProfile
	prechecks   map[string]model.PrecheckReport
	precheckReq []model.PrecheckRequest
	registered  []model.RegisterClientsRequest
	calls       map[string]int
	failures    map[string]int
	delays      map[string]time.Duration
	nextID      int
}

// NewBackend starts a fake backend that is closed when the test ends
func NewBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{
		executions:  make(map[string]*model.Execution),
		metrics:     make(map[string][]model.MetricSample),
		commands:    make(map[string][]model.CommandEntry),
		workloads:   make(map[string]model.Workload),
		suggestions: make(map[string]model.SuggestionResponse),
		profiles:    make(map[string]model.NetworkProfile),
		prechecks:   make(map[string]model.PrecheckReport),
		calls:       make(map[string]int),
		failures:    make(map[string]int),
		delays:      make(map[string]time.Duration),
	}

	mux := http.NewServeMux()
	b.route(mux, "GET /api/v1/executions/{$}", "list-executions", b.listExecutions)
	b.route(mux, "POST /api/v1/executions/{$}", "start-execution", b.startExecution)
	b.route(mux, "GET /api/v1/executions/{id}/{$}", "get-execution", b.getExecution)
	b.route(mux, "POST /api/v1/executions/{id}/{cmd}", "execution-command", b.executionCommand)
	b.route(mux, "GET /api/v1/executions/{id}/commands", "execution-commands", b.executionCommands)
	b.route(mux, "GET /api/v1/metrics/{id}/latest/{$}", "latest-metrics", b.latestMetrics)

	b.route(mux, "GET /api/v1/clients/{$}", "list-clients", b.listClients)
	b.route(mux, "POST /api/v1/clients/{$}", "register-clients", b.registerClients)
	b.route(mux, "POST /api/v1/clients/{a}/{b}", "client-action", b.clientAction)
	b.route(mux, "DELETE /api/v1/clients/{id}", "delete-client", b.deleteClient)

	b.route(mux, "GET /api/v1/clusters/{$}", "list-clusters", b.listClusters)
	b.route(mux, "POST /api/v1/clusters/{$}", "create-cluster", b.createCluster)
	b.route(mux, "POST /api/v1/clusters/discover/{$}", "discover-cluster", b.discoverCluster)
	b.route(mux, "GET /api/v1/clusters/{name}/health", "cluster-health", b.clusterHealth)
	b.route(mux, "POST /api/v1/clusters/{name}/run-command", "cluster-command", b.clusterCommand)
	b.route(mux, "DELETE /api/v1/clusters/{name}", "delete-cluster", b.deleteCluster)

	b.route(mux, "GET /api/v1/network/suggestions/{cluster}", "suggestions", b.networkSuggestions)
	b.route(mux, "GET /api/v1/network/profile/{cluster}", "profile", b.networkProfile)

	b.route(mux, "POST /api/v1/prechecks/run", "run-prechecks", b.runPrechecks)

	b.route(mux, "GET /api/v1/workloads/{$}", "list-workloads", b.listWorkloads)
	b.route(mux, "POST /api/v1/workloads/{$}", "create-workload", b.createWorkload)
	b.route(mux, "GET /api/v1/workloads/{name}", "get-workload", b.getWorkload)
	b.route(mux, "PUT /api/v1/workloads/{name}", "update-workload", b.updateWorkload)
	b.route(mux, "DELETE /api/v1/workloads/{name}", "delete-workload", b.deleteWorkload)

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Server.Close)
	return b
}

func (b *Backend) route(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[name]++
		status := b.failures[name]
		delete(b.failures, name)
		delay := b.delays[name]
		b.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			writeDetail(w, status, fmt.Sprintf("injected failure for %s", name))
			return
		}
		h(w, r)
	})
}

// Calls returns how many requests hit the named route
func (b *Backend) Calls(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

// FailNext makes the next request on the named route return status
func (b *Backend) FailNext(name string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[name] = status
}

// Delay holds every response on the named route for d
func (b *Backend) Delay(name string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delays[name] = d
}

// PutExecution stores or replaces an execution
func (b *Backend) PutExecution(e model.Execution) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.executions[e.ID]; !ok {
		b.order = append(b.order, e.ID)
	}
	b.executions[e.ID] = &e
}

// SetStatus changes an execution's status
func (b *Backend) SetStatus(id string, status model.ExecutionStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.executions[id]; ok {
		e.Status = status
	}
}

// AppendMetrics appends samples to an execution's metrics
func (b *Backend) AppendMetrics(id string, samples ...model.MetricSample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.metrics[id] = append(b.metrics[id], samples...)
}

// PutClients replaces the roster
func (b *Backend) PutClients(clients ...model.Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients = append([]model.Client(nil), clients...)
}

// UpdateClient applies fn to the client with id
func (b *Backend) UpdateClient(id string, fn func(*model.Client)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.clients {
		if b.clients[i].ID == id {
			fn(&b.clients[i])
		}
	}
}

// Registered returns every registration request received
func (b *Backend) Registered() []model.RegisterClientsRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.RegisterClientsRequest(nil), b.registered...)
}

// PutCluster stores a cluster
func (b *Backend) PutCluster(c model.Cluster) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clusters = append(b.clusters, c)
}

// PutWorkload stores a workload
func (b *Backend) PutWorkload(w model.Workload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.workloads[w.Name] = w
}

// Workload returns a stored workload
func (b *Backend) Workload(name string) (model.Workload, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.workloads[name]
	return w, ok
}

// PutSuggestion sets the suggestion served for a cluster
func (b *Backend) PutSuggestion(cluster string, s model.SuggestionResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.suggestions[cluster] = s
}

// PutProfile sets the profile served for a cluster
func (b *Backend) PutProfile(cluster string, p model.NetworkProfile) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profiles[cluster] = p
}

// PutPrecheck sets the precheck report served for a registered cluster.
// Without one a registered cluster passes.
func (b *Backend) PutPrecheck(cluster string, r model.PrecheckReport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prechecks[cluster] = r
}

// PrecheckRequests returns the precheck requests received so far
func (b *Backend) PrecheckRequests() []model.PrecheckRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.PrecheckRequest(nil), b.precheckReq...)
}

func (b *Backend) listExecutions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	b.mu.Lock()
	defer b.mu.Unlock()

	out := model.ExecutionList{Executions: []model.Execution{}}
	for i := len(b.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out.Executions) >= limit {
			break
		}
		out.Executions = append(out.Executions, *b.executions[b.order[i]])
	}
	out.Total = len(out.Executions)
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) startExecution(w http.ResponseWriter, r *http.Request) {
	var req model.StartExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	wl, ok := b.workloads[req.WorkloadName]
	if !ok {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Workload '%s' not found", req.WorkloadName))
		return
	}
	b.nextID++
	id := fmt.Sprintf("exec-%03d", b.nextID)
	name := req.Name
	if name == "" {
		name = req.WorkloadName + "_run"
	}
	b.executions[id] = &model.Execution{
		ID:              id,
		Name:            name,
		Status:          model.ExecutionStatusPending,
		WorkloadName:    req.WorkloadName,
		ClusterName:     wl.ClusterName,
		NetworkBaseline: wl.NetworkBaseline,
	}
	b.order = append(b.order, id)
	writeJSON(w, http.StatusOK, model.StartExecutionResponse{
		ExecutionID: id,
		Name:        name,
		Status:      model.ExecutionStatusPending,
		Message:     "Execution started",
	})
}

func (b *Backend) getExecution(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.executions[r.PathValue("id")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Execution not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (b *Backend) executionCommand(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.executions[r.PathValue("id")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Execution not found")
		return
	}

	cmd := model.Command(r.PathValue("cmd"))
	if !e.Status.Allows(cmd) {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Cannot %s execution in status: %s", cmd, e.Status))
		return
	}
	switch cmd {
	case model.CommandStop:
		e.Status = model.ExecutionStatusStopping
	case model.CommandPause:
		e.Status = model.ExecutionStatusPaused
	case model.CommandResume:
		e.Status = model.ExecutionStatusRunning
	}
	writeJSON(w, http.StatusOK, model.ActionResponse{Message: "ok", Status: string(e.Status)})
}

func (b *Backend) executionCommands(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cmds := b.commands[r.PathValue("id")]
	writeJSON(w, http.StatusOK, model.CommandLog{Commands: append([]model.CommandEntry{}, cmds...), Total: len(cmds)})
}

func (b *Backend) latestMetrics(w http.ResponseWriter, r *http.Request) {
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count <= 0 {
		count = 60
	}
	if count > 300 {
		writeDetail(w, http.StatusUnprocessableEntity, "count must be <= 300")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	id := r.PathValue("id")
	if _, ok := b.executions[id]; !ok {
		writeDetail(w, http.StatusNotFound, "Execution not found")
		return
	}
	samples := b.metrics[id]
	if len(samples) > count {
		samples = samples[len(samples)-count:]
	}
	writeJSON(w, http.StatusOK, model.LatestMetrics{
		ExecutionID: id,
		Metrics:     append([]model.MetricSample{}, samples...),
		Count:       len(samples),
	})
}

func (b *Backend) listClients(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := model.ClientList{Clients: append([]model.Client{}, b.clients...), Total: len(b.clients)}
	for _, c := range b.clients {
		switch c.Status {
		case model.ClientStatusOnline:
			out.Online++
		case model.ClientStatusOffline, model.ClientStatusUnreachable:
			out.Offline++
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) registerClients(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterClientsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.registered = append(b.registered, req)

	var out model.RegisterClientsResponse
	for _, entry := range req.Clients {
		exists := false
		for _, c := range b.clients {
			if c.ID == entry.ID {
				exists = true
			}
		}
		if exists {
			out.Skipped = append(out.Skipped, entry.ID)
			continue
		}
		c := model.Client{ID: entry.ID, Hostname: entry.Hostname, Status: model.ClientStatusUnknown}
		if req.DeployAgent {
			c.DeploymentStatus = "connecting"
			out.Deployment = append(out.Deployment, model.DeploymentTicket{ClientID: entry.ID, Status: "setting_up"})
		}
		b.clients = append(b.clients, c)
		out.Added = append(out.Added, entry.ID)
	}
	out.Total = len(b.clients)
	out.Message = fmt.Sprintf("Added %d clients", len(out.Added))
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) clientAction(w http.ResponseWriter, r *http.Request) {
	first, second := r.PathValue("a"), r.PathValue("b")

	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case first == "health" && second == "all":
		for i := range b.clients {
			if b.clients[i].Status == model.ClientStatusUnknown {
				b.clients[i].Status = model.ClientStatusOnline
			}
		}
	case first == "deploy" && second == "all":
		for i := range b.clients {
			b.clients[i].DeploymentStatus = "connecting"
		}
	case first == "push-ceph-config":
	case second == "deploy", second == "stop-agent":
		idx := b.clientIndex(first)
		if idx < 0 {
			writeDetail(w, http.StatusNotFound, "Client not found")
			return
		}
		if second == "deploy" {
			b.clients[idx].DeploymentStatus = "connecting"
		} else {
			b.clients[idx].Status = model.ClientStatusOffline
		}
	default:
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, model.ActionResponse{Message: "ok"})
}

func (b *Backend) deleteClient(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.clientIndex(r.PathValue("id"))
	if idx < 0 {
		writeDetail(w, http.StatusNotFound, "Client not found")
		return
	}
	b.clients = append(b.clients[:idx], b.clients[idx+1:]...)
	writeJSON(w, http.StatusOK, model.ActionResponse{Message: "deleted"})
}

func (b *Backend) clientIndex(id string) int {
	for i, c := range b.clients {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (b *Backend) listClusters(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, model.ClusterList{Clusters: append([]model.Cluster{}, b.clusters...)})
}

func (b *Backend) createCluster(w http.ResponseWriter, r *http.Request) {
	var c model.Cluster
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.clusters {
		if existing.Name == c.Name {
			writeDetail(w, http.StatusConflict, "Cluster already exists")
			return
		}
	}
	b.clusters = append(b.clusters, c)
	writeJSON(w, http.StatusOK, model.ActionResponse{Message: "created"})
}

func (b *Backend) discoverCluster(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.Discovery{
		Monitors:    []string{"10.0.0.10:6789"},
		User:        "admin",
		KeyringPath: "/etc/ceph/ceph.client.admin.keyring",
		ConfPath:    "/etc/ceph/ceph.conf",
		Pools:       []string{"rbd"},
		FSID:        "7c2c5f4e-0000-0000-0000-000000000000",
		Version:     "18.2.0",
		Health:      "HEALTH_OK",
	})
}

func (b *Backend) clusterHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.ClusterHealth{
		Health:  "HEALTH_OK",
		Cluster: r.PathValue("name"),
		Checks:  []string{},
		State:   "active+clean",
	})
}

func (b *Backend) clusterCommand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, model.CommandResult{Success: true, Stdout: "ran: " + body.Command})
}

func (b *Backend) deleteCluster(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, c := range b.clusters {
		if c.Name == r.PathValue("name") {
			b.clusters = append(b.clusters[:i], b.clusters[i+1:]...)
			writeJSON(w, http.StatusOK, model.ActionResponse{Message: "deleted"})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Cluster not found")
}

func (b *Backend) networkSuggestions(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.suggestions[r.PathValue("cluster")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Cluster not found")
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (b *Backend) networkProfile(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.profiles[r.PathValue("cluster")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Cluster not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (b *Backend) runPrechecks(w http.ResponseWriter, r *http.Request) {
	var req model.PrecheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.precheckReq = append(b.precheckReq, req)

	known := false
	for _, c := range b.clusters {
		if c.Name == req.ClusterName {
			known = true
			break
		}
	}
	if !known {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Cluster '%s' not found", req.ClusterName))
		return
	}
	report, ok := b.prechecks[req.ClusterName]
	if !ok {
		report = model.PrecheckReport{
			ExecutionID:   "precheck_" + strconv.Itoa(len(b.precheckReq)),
			OverallStatus: model.PrecheckPassed,
			CanProceed:    true,
			ClientsTotal:  len(b.clients),
			ClientsOnline: len(b.clients),
		}
	}
	writeJSON(w, http.StatusOK, report)
}

func (b *Backend) listWorkloads(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := model.WorkloadList{Workloads: []model.Workload{}}
	for _, wl := range b.workloads {
		out.Workloads = append(out.Workloads, wl)
	}
	out.Total = len(out.Workloads)
	out.Custom = out.Total
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) createWorkload(w http.ResponseWriter, r *http.Request) {
	var wl model.Workload
	if err := json.NewDecoder(r.Body).Decode(&wl); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.workloads[wl.Name]; ok {
		writeDetail(w, http.StatusConflict, fmt.Sprintf("Workload '%s' already exists", wl.Name))
		return
	}
	b.workloads[wl.Name] = wl
	writeJSON(w, http.StatusOK, model.ActionResponse{Message: "Workload created successfully"})
}

func (b *Backend) getWorkload(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	wl, ok := b.workloads[r.PathValue("name")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Workload not found")
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

func (b *Backend) updateWorkload(w http.ResponseWriter, r *http.Request) {
	var wl model.Workload
	if err := json.NewDecoder(r.Body).Decode(&wl); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	name := r.PathValue("name")
	if _, ok := b.workloads[name]; !ok {
		writeDetail(w, http.StatusNotFound, "Workload not found")
		return
	}
	b.workloads[name] = wl
	writeJSON(w, http.StatusOK, model.ActionResponse{Message: "Workload updated successfully"})
}

func (b *Backend) deleteWorkload(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	name := r.PathValue("name")
	if _, ok := b.workloads[name]; !ok {
		writeDetail(w, http.StatusNotFound, "Workload not found")
		return
	}
	delete(b.workloads, name)
	writeJSON(w, http.StatusOK, model.ActionResponse{Message: "deleted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
