package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/t77yq/benchconsole/internal/fleet"
	"github.com/t77yq/benchconsole/internal/model"
	"github.com/t77yq/benchconsole/internal/monitor"
	"github.com/t77yq/benchconsole/internal/network"
	"github.com/t77yq/benchconsole/internal/render"
	"github.com/t77yq/benchconsole/internal/scheduler"
	"github.com/t77yq/benchconsole/internal/storage"
	"github.com/t77yq/benchconsole/internal/workload"
)

// rosterWaitTick paces waits for a first poll result
const rosterWaitTick = 100 * time.Millisecond

var out io.Writer = os.Stdout

func (e *env) status(ctx context.Context) error {
	stats, err := monitor.CollectHostStats(ctx)
	if err != nil {
		e.logger.Warn("Failed to collect host stats", zap.Error(err))
	} else {
		render.Host(out, stats)
	}

	m, err := e.newMonitor()
	if err != nil {
		return err
	}
	list, err := m.List(ctx, 10)
	if err != nil {
		return err
	}
	render.Executions(out, list.Executions)
	return nil
}

func (e *env) listClusters(ctx context.Context) error {
	list, err := e.newClusters().List(ctx)
	if err != nil {
		return err
	}
	render.Clusters(out, list.Clusters)
	return nil
}

// addClusters registers every cluster in a YAML file. The file holds either
// one cluster or a list of them.
func (e *env) addClusters(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var clusters []model.Cluster
	if err := yaml.Unmarshal(data, &clusters); err != nil {
		var one model.Cluster
		if err := yaml.Unmarshal(data, &one); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		clusters = []model.Cluster{one}
	}

	inv := e.newClusters()
	for _, c := range clusters {
		if err := inv.Create(ctx, c); err != nil {
			return err
		}
		fmt.Fprintf(out, "cluster %s registered\n", c.Name)
	}
	if list, ok := inv.Cached(); ok {
		render.Clusters(out, list.Clusters)
	}
	return nil
}

func (e *env) clusterHealth(ctx context.Context, name string) error {
	h, err := e.newClusters().Health(ctx, name)
	if err != nil {
		return err
	}
	render.Health(out, h)
	return nil
}

func (e *env) prechecks(ctx context.Context, cluster string, checkNetwork bool) error {
	report, err := e.newClusters().Prechecks(ctx, model.PrecheckRequest{
		ClusterName:  cluster,
		CheckCluster: true,
		CheckClients: true,
		CheckNetwork: checkNetwork,
	})
	if report != nil {
		render.Prechecks(out, report)
	}
	return err
}

func (e *env) discoverCluster(ctx context.Context, host, user, key string, port int) error {
	d, err := e.newClusters().Discover(ctx, model.InstallerNode{Host: host, Username: user, KeyPath: key, Port: port})
	if err != nil {
		return err
	}
	return yaml.NewEncoder(out).Encode(d)
}

func (e *env) runClusterCommand(ctx context.Context, name, command string) error {
	res, err := e.newClusters().RunCommand(ctx, name, command)
	if err != nil {
		return err
	}
	fmt.Fprint(out, res.Stdout)
	fmt.Fprint(os.Stderr, res.Stderr)
	if !res.Success {
		return fmt.Errorf("command failed on %s", name)
	}
	return nil
}

func (e *env) deleteCluster(ctx context.Context, name string) error {
	if err := e.newClusters().Delete(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(out, "cluster %s deleted\n", name)
	return nil
}

// startTracker starts roster polling and waits for the first roster
func (e *env) startTracker(ctx context.Context) (*fleet.Tracker, error) {
	t := e.newTracker()
	if err := t.Start(ctx); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(rosterWaitTick)
	defer ticker.Stop()
	for {
		if list, entry, ok := t.Roster(); ok {
			if list == nil && entry.Err != nil {
				return nil, entry.Err
			}
			return t, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *env) listClients(ctx context.Context, watch bool) error {
	t, err := e.startTracker(ctx)
	if err != nil {
		return err
	}
	if !watch {
		showClients(t)
		return nil
	}
	return e.followDeployment(ctx, t)
}

// showClients prints the roster and reports whether any client is still deploying
func showClients(t *fleet.Tracker) bool {
	rows := t.Rows()
	render.Clients(out, rows)
	requested := t.Deploying()
	if len(requested) > 0 {
		fmt.Fprintf(out, "Deploy requested: %s\n", strings.Join(requested, ", "))
		return true
	}
	for _, r := range rows {
		if r.Phase == fleet.PhaseDeploying {
			return true
		}
	}
	return false
}

func (e *env) registerClients(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var batch fleet.Batch
	if err := yaml.NewDecoder(f).Decode(&batch); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	t, err := e.startTracker(ctx)
	if err != nil {
		return err
	}
	resp, err := t.RegisterBatch(ctx, batch)
	if err != nil {
		return err
	}
	render.Registration(out, resp)
	if batch.DeployAgent {
		return e.followDeployment(ctx, t)
	}
	return nil
}

func (e *env) followDeployment(ctx context.Context, t *fleet.Tracker) error {
	ticker := time.NewTicker(e.cfg.Poll.ClientsInterval)
	defer ticker.Stop()
	for showClients(t) {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func (e *env) clientCommand(ctx context.Context, name, target string) error {
	t, err := e.startTracker(ctx)
	if err != nil {
		return err
	}

	switch name {
	case "deploy":
		err = t.Deploy(ctx, target)
	case "deploy-all":
		err = t.DeployAll(ctx)
	case "stop-agent":
		err = t.StopAgent(ctx, target)
	case "delete":
		err = t.Delete(ctx, target)
	case "health":
		err = t.CheckHealth(ctx)
	case "push-ceph-config":
		err = t.PushCephConfig(ctx, target)
	default:
		err = fmt.Errorf("unknown client command %q", name)
	}
	if err != nil {
		return err
	}

	if name == "deploy" || name == "deploy-all" {
		return e.followDeployment(ctx, t)
	}
	render.Clients(out, t.Rows())
	return nil
}

func (e *env) clientError(ctx context.Context, id string) error {
	t, err := e.startTracker(ctx)
	if err != nil {
		return err
	}
	msg, err := t.ErrorMessage(id)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, msg)
	return nil
}

func (e *env) listExecutions(ctx context.Context, limit int) error {
	m, err := e.newMonitor()
	if err != nil {
		return err
	}
	list, err := m.List(ctx, limit)
	if err != nil {
		return err
	}
	render.Executions(out, list.Executions)
	return nil
}

func (e *env) startExecution(ctx context.Context, workloadName, name string, prechecks, watch bool) error {
	m, err := e.newMonitor()
	if err != nil {
		return err
	}
	resp, err := m.StartExecution(ctx, model.StartExecutionRequest{
		WorkloadName: workloadName,
		Name:         name,
		RunPrechecks: prechecks,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "execution %s started\n", resp.ExecutionID)
	if !watch {
		return nil
	}
	return e.follow(ctx, m, resp.ExecutionID)
}

func (e *env) watch(ctx context.Context, id string) error {
	m, err := e.newMonitor()
	if err != nil {
		return err
	}
	return e.follow(ctx, m, id)
}

// follow observes an execution and renders its view on every poll tick
// until it reaches a terminal status
func (e *env) follow(ctx context.Context, m *monitor.Monitor, id string) error {
	if err := m.Observe(ctx, id); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, err := m.Wait(ctx, id)
		done <- err
	}()

	ticker := time.NewTicker(e.cfg.Poll.ExecutionInterval)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			e.show(m, id)
			return nil
		case <-ticker.C:
			e.show(m, id)
		}
	}
}

func (e *env) show(m *monitor.Monitor, id string) {
	v, ok := m.View(id)
	if !ok {
		fmt.Fprintf(out, "waiting for %s...\n", id)
		return
	}
	render.Execution(out, v)
	render.Series(out, v.Series, 10)
}

func (e *env) executionCommand(ctx context.Context, name, id string) error {
	m, err := e.newMonitor()
	if err != nil {
		return err
	}
	if err := m.Observe(ctx, id); err != nil {
		return err
	}
	if err := awaitView(ctx, m, id); err != nil {
		return err
	}

	switch name {
	case "stop":
		err = m.Stop(ctx, id)
	case "pause":
		err = m.Pause(ctx, id)
	case "resume":
		err = m.Resume(ctx, id)
	}
	if err != nil {
		return err
	}
	e.show(m, id)
	return nil
}

// awaitView waits for the first status poll so command preconditions are
// checked against a known status
func awaitView(ctx context.Context, m *monitor.Monitor, id string) error {
	ticker := time.NewTicker(rosterWaitTick)
	defer ticker.Stop()
	for {
		if _, ok := m.View(id); ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *env) commands(ctx context.Context, id string) error {
	m, err := e.newMonitor()
	if err != nil {
		return err
	}
	log, err := m.Commands(ctx, id)
	if err != nil {
		return err
	}
	render.Commands(out, log)
	return nil
}

func (e *env) suggest(ctx context.Context, cluster, storageType string) error {
	r := e.newRunner()
	target := network.Target{Cluster: cluster, StorageType: storageType}
	if _, err := r.Suggestion(ctx, target); err != nil {
		return err
	}
	b, ok := r.Baseline(target)
	if !ok {
		return network.ErrNoBaseline
	}
	render.Baseline(out, b)
	return nil
}

func (e *env) profile(ctx context.Context, cluster, storageType string) error {
	r := e.newRunner()
	target := network.Target{Cluster: cluster, StorageType: storageType}
	if err := runProfile(ctx, r, target); err != nil {
		return err
	}
	if p, ok := r.Profile(target); ok {
		render.Profile(out, p)
	}
	b, ok := r.Baseline(target)
	if !ok {
		return network.ErrNoBaseline
	}
	render.Baseline(out, b)
	return nil
}

func runProfile(ctx context.Context, r *network.Runner, target network.Target) error {
	fmt.Fprintf(out, "profiling network of %s...\n", target)
	r.Run(target)
	st, err := r.Wait(ctx, target)
	if err != nil {
		return err
	}
	if st.State == network.StateError {
		return fmt.Errorf("network profile of %s failed: %s", target, st.Error)
	}
	return nil
}

func (e *env) listWorkloads(ctx context.Context) error {
	list, err := e.newWorkloads().List(ctx)
	if err != nil {
		return err
	}
	render.Workloads(out, list.Workloads)
	return nil
}

func (e *env) applyWorkloads(ctx context.Context, path string) error {
	defs, err := workload.LoadFile(path)
	if err != nil {
		return err
	}
	w := e.newWorkloads()
	for _, def := range defs {
		res, err := w.Apply(ctx, def)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "workload %s %s\n", def.Name, res)
	}
	return nil
}

func (e *env) deleteWorkload(ctx context.Context, name string) error {
	if err := e.newWorkloads().Delete(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(out, "workload %s deleted\n", name)
	return nil
}

// attachBaseline measures the network of the workload's cluster and stores
// the resolved baseline on the workload
func (e *env) attachBaseline(ctx context.Context, name, cluster string, full bool) error {
	w := e.newWorkloads()
	def, err := w.Get(ctx, name)
	if err != nil {
		return err
	}
	if cluster == "" {
		cluster = def.ClusterName
	}
	if cluster == "" {
		return fmt.Errorf("workload %s has no cluster, pass --cluster", name)
	}

	r := e.newRunner()
	target := network.Target{Cluster: cluster, StorageType: def.StorageType}
	if full {
		if err := runProfile(ctx, r, target); err != nil {
			return err
		}
	} else if _, err := r.Suggestion(ctx, target); err != nil {
		return err
	}

	b, ok := r.Baseline(target)
	if !ok {
		return network.ErrNoBaseline
	}
	updated, err := w.AttachBaseline(ctx, name, network.Snapshot(b, target, time.Now()))
	if err != nil {
		return err
	}
	if updated.NetworkBaseline != nil {
		render.Baseline(out, *updated.NetworkBaseline)
	}
	return nil
}

func (e *env) history(ctx context.Context, status, cluster string, offset, limit int) error {
	h, err := e.openHistory()
	if err != nil {
		return err
	}
	filter := storage.HistoryFilter{Status: model.ExecutionStatus(status), Cluster: cluster}
	records, err := h.List(ctx, filter, offset, limit)
	if err != nil {
		return err
	}
	total, err := h.Count(ctx, filter)
	if err != nil {
		return err
	}
	render.History(out, records, total)
	return nil
}

// jobs shows the configured schedule without running it
func (e *env) jobs() error {
	s := scheduler.NewCronScheduler(e.logger)
	noop := func(context.Context) error { return nil }
	if _, err := s.AddJob(scheduler.FleetHealthJob, e.cfg.Schedule.HealthCheck, noop); err != nil {
		return err
	}
	if _, err := s.AddJob(scheduler.HistoryCleanupJob, e.cfg.Schedule.HistoryCleanup, noop); err != nil {
		return err
	}
	render.Jobs(out, s.ListJobs())
	return nil
}
