// Package fleet tracks the client roster and its agent deployments.
package fleet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/benchconsole/internal/cache"
	"github.com/t77yq/benchconsole/internal/model"
	"github.com/t77yq/benchconsole/internal/poller"
	"github.com/t77yq/benchconsole/internal/telemetry"
)

const (
	DefaultInterval = 5 * time.Second
	// seedTimeout bounds how long a requested deployment is shown without roster confirmation
	seedTimeout = 5 * time.Minute
)

// ClientAPI is the part of the backend the tracker talks to
type ClientAPI interface {
	ListClients(ctx context.Context) (*model.ClientList, error)
	RegisterClients(ctx context.Context, req model.RegisterClientsRequest) (*model.RegisterClientsResponse, error)
	CheckAllClientsHealth(ctx context.Context) error
	DeployAllClients(ctx context.Context) error
	DeployClient(ctx context.Context, id string) error
	StopAgent(ctx context.Context, id string) error
	DeleteClient(ctx context.Context, id string) error
	PushCephConfig(ctx context.Context, clusterName string) error
}

// Option configures a Tracker
type Option func(*Tracker)

// WithMetrics attaches prometheus counters
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = metrics
	}
}

// Tracker polls the client roster and sends client commands
type Tracker struct {
	logger   *zap.Logger
	api      ClientAPI
	cache    *cache.Cache
	interval time.Duration
	metrics  *telemetry.Metrics
	poller   *poller.Poller

	mu      sync.Mutex
	seeded  map[string]time.Time
	unwatch func()
	now     func() time.Time
}

// NewTracker creates a new Tracker
func NewTracker(api ClientAPI, c *cache.Cache, interval time.Duration, logger *zap.Logger, opts ...Option) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	t := &Tracker{
		logger:   logger.Named("client-tracker"),
		api:      api,
		cache:    c,
		interval: interval,
		seeded:   make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.poller = poller.New(cache.ClientsKey, func(ctx context.Context) (any, error) {
		return t.api.ListClients(ctx)
	}, poller.Every(interval), c, t.logger, poller.WithObserver(t.metrics))
	return t
}

// Start begins polling the roster
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	t.unwatch = t.cache.Watch(cache.ClientsKey, t.onRoster)
	t.mu.Unlock()

	if err := t.poller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start roster poller: %w", err)
	}
	t.logger.Info("Tracking client roster", zap.Duration("interval", t.interval))
	return nil
}

// Stop stops polling
func (t *Tracker) Stop() {
	t.poller.Stop()

	t.mu.Lock()
	if t.unwatch != nil {
		t.unwatch()
		t.unwatch = nil
	}
	t.mu.Unlock()
}

// Refresh forces an immediate roster fetch
func (t *Tracker) Refresh() {
	t.cache.Invalidate(cache.ClientsKey)
}

// Roster returns the cached roster entry
func (t *Tracker) Roster() (*model.ClientList, cache.Entry, bool) {
	entry, ok := t.cache.Get(cache.ClientsKey)
	if !ok {
		return nil, cache.Entry{}, false
	}
	list, _ := entry.Value.(*model.ClientList)
	return list, entry, true
}

// Rows renders the roster. Clients whose deployment was requested but that
// the roster does not list yet are shown as deploying placeholders.
func (t *Tracker) Rows() []Row {
	list, _, _ := t.Roster()

	t.mu.Lock()
	seeded := make(map[string]bool, len(t.seeded))
	for id := range t.seeded {
		seeded[id] = true
	}
	t.mu.Unlock()

	var rows []Row
	if list != nil {
		rows = make([]Row, 0, len(list.Clients))
		for _, c := range list.Clients {
			rows = append(rows, RowFor(c, seeded[c.ID]))
			delete(seeded, c.ID)
		}
	}

	missing := make([]string, 0, len(seeded))
	for id := range seeded {
		missing = append(missing, id)
	}
	sort.Strings(missing)
	for _, id := range missing {
		rows = append(rows, RowFor(model.Client{ID: id, Status: model.ClientStatusUnknown}, true))
	}
	return rows
}

// ErrorMessage returns the full error text of a client
func (t *Tracker) ErrorMessage(id string) (string, error) {
	list, _, ok := t.Roster()
	if !ok || list == nil {
		return "", ErrNoRoster
	}
	c, ok := list.Find(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	return model.ErrorText(c.ErrorMessage), nil
}

// Deploying returns the ids currently shown as deploying by request
func (t *Tracker) Deploying() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.seeded))
	for id := range t.seeded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Deploy installs and starts the agent on one client
func (t *Tracker) Deploy(ctx context.Context, id string) error {
	return t.command(ctx, "deploy", id, func(ctx context.Context) error {
		return t.api.DeployClient(ctx, id)
	})
}

// DeployAll triggers deployment on every client. It returns once the backend
// accepted the request; progress shows up in later roster polls.
func (t *Tracker) DeployAll(ctx context.Context) error {
	return t.command(ctx, "deploy-all", "", t.api.DeployAllClients)
}

// StopAgent stops the agent of one client
func (t *Tracker) StopAgent(ctx context.Context, id string) error {
	return t.command(ctx, "stop-agent", id, func(ctx context.Context) error {
		return t.api.StopAgent(ctx, id)
	})
}

// Delete removes a client
func (t *Tracker) Delete(ctx context.Context, id string) error {
	err := t.command(ctx, "delete", id, func(ctx context.Context) error {
		return t.api.DeleteClient(ctx, id)
	})
	if err == nil {
		t.mu.Lock()
		delete(t.seeded, id)
		t.mu.Unlock()
	}
	return err
}

// CheckHealth asks the backend to probe every client
func (t *Tracker) CheckHealth(ctx context.Context) error {
	return t.command(ctx, "health-check", "", t.api.CheckAllClientsHealth)
}

// PushCephConfig copies the cluster's ceph configuration to its clients
func (t *Tracker) PushCephConfig(ctx context.Context, clusterName string) error {
	return t.command(ctx, "push-ceph-config", clusterName, func(ctx context.Context) error {
		return t.api.PushCephConfig(ctx, clusterName)
	})
}

// RegisterBatch registers a batch of hosts. Clients the backend starts
// deploying are shown as deploying right away.
func (t *Tracker) RegisterBatch(ctx context.Context, batch Batch) (*model.RegisterClientsResponse, error) {
	entries := Prepare(batch.Entries, batch.Defaults)
	if len(entries) == 0 {
		return nil, ErrEmptyBatch
	}

	resp, err := t.api.RegisterClients(ctx, model.RegisterClientsRequest{
		Clients:        entries,
		Defaults:       batch.Defaults,
		DeployAgent:    batch.DeployAgent,
		PushCephConfig: batch.PushCephConfig,
		ClusterName:    batch.ClusterName,
	})
	t.metrics.Command("register", err)
	if err != nil {
		t.logger.Error("Failed to register clients", zap.Int("count", len(entries)), zap.Error(err))
		return nil, fmt.Errorf("failed to register clients: %w", err)
	}

	now := t.now()
	t.mu.Lock()
	for _, ticket := range resp.Deployment {
		t.seeded[ticket.ClientID] = now
	}
	t.mu.Unlock()

	t.logger.Info("Registered clients",
		zap.Int("added", len(resp.Added)),
		zap.Int("skipped", len(resp.Skipped)),
		zap.Int("deploying", len(resp.Deployment)))
	t.Refresh()
	return resp, nil
}

func (t *Tracker) command(ctx context.Context, name, target string, fn func(context.Context) error) error {
	err := fn(ctx)
	t.metrics.Command(name, err)
	if err != nil {
		t.logger.Error("Client command failed",
			zap.String("command", name),
			zap.String("target", target),
			zap.Error(err))
		return fmt.Errorf("failed to %s: %w", name, err)
	}

	t.logger.Info("Client command accepted", zap.String("command", name), zap.String("target", target))
	t.Refresh()
	return nil
}

// onRoster drops requested deployments once the roster settles them
func (t *Tracker) onRoster(ev cache.Event) {
	if ev.Kind != cache.EventUpdated {
		return
	}
	list, ok := ev.Entry.Value.(*model.ClientList)
	if !ok {
		return
	}

	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, since := range t.seeded {
		if now.Sub(since) > seedTimeout {
			delete(t.seeded, id)
			continue
		}
		c, ok := list.Find(id)
		if ok && settled(c) {
			delete(t.seeded, id)
		}
	}
}

func settled(c model.Client) bool {
	switch c.DeploymentStatus {
	case model.DeploymentSuccess, model.DeploymentFailed:
		return true
	case "":
		return c.Status == model.ClientStatusOnline || c.Status == model.ClientStatusError
	}
	return false
}
