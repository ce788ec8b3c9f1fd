// Package network runs network suggestion and profiling jobs against clusters.
package network

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/t77yq/benchconsole/internal/cache"
	"github.com/t77yq/benchconsole/internal/model"
	"github.com/t77yq/benchconsole/internal/telemetry"
)

const (
	DefaultSuggestionTTL   = 60 * time.Second
	DefaultProfileDuration = 5 * time.Second
)

// State is the state of a profile run
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateDone    State = "done"
	StateError   State = "error"
)

// Target is the cluster a baseline is measured for
type Target struct {
	Cluster     string `json:"cluster"`
	StorageType string `json:"storage_type,omitempty"`
}

func (t Target) String() string {
	if t.StorageType == "" {
		return t.Cluster
	}
	return t.Cluster + "/" + t.StorageType
}

// ProfileAPI is the part of the backend the runner talks to
type ProfileAPI interface {
	NetworkSuggestions(ctx context.Context, cluster, storageType string) (*model.SuggestionResponse, error)
	NetworkProfile(ctx context.Context, cluster string, durationSeconds int) (*model.NetworkProfile, error)
}

// Config holds runner settings
type Config struct {
	SuggestionTTL   time.Duration
	ProfileDuration time.Duration
}

// Status describes the profile run of one target
type Status struct {
	Target     Target     `json:"target"`
	State      State      `json:"state"`
	Error      string     `json:"error,omitempty"`
	Generation uint64     `json:"generation"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type run struct {
	gen        uint64
	state      State
	err        error
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	startedAt  time.Time
	finishedAt time.Time
}

// Option configures a Runner
type Option func(*Runner)

// WithMetrics attaches prometheus counters
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(r *Runner) {
		r.metrics = metrics
	}
}

// Runner fetches suggestions and runs full profiles. Suggestions are cached
// for a short TTL per cluster and storage type. A profile measures the
// cluster's network, so runs and their results are kept per cluster and
// shared by every storage type of it until the cluster is closed or
// profiled again.
type Runner struct {
	logger      *zap.Logger
	api         ProfileAPI
	cache       *cache.Cache
	cfg         Config
	metrics     *telemetry.Metrics
	suggestions *ttlcache.Cache[Target, *model.SuggestionResponse]

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool

	// launchMu orders run replacement with the cache sequence of each run
	launchMu sync.Mutex
	mu       sync.Mutex
	gen      uint64
	// runs by cluster
	runs map[string]*run
}

// NewRunner creates a new Runner
func NewRunner(api ProfileAPI, c *cache.Cache, cfg Config, logger *zap.Logger, opts ...Option) *Runner {
	if cfg.SuggestionTTL <= 0 {
		cfg.SuggestionTTL = DefaultSuggestionTTL
	}
	if cfg.ProfileDuration <= 0 {
		cfg.ProfileDuration = DefaultProfileDuration
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		logger: logger.Named("network-profile"),
		api:    api,
		cache:  c,
		cfg:    cfg,
		suggestions: ttlcache.New[Target, *model.SuggestionResponse](
			ttlcache.WithTTL[Target, *model.SuggestionResponse](cfg.SuggestionTTL),
			ttlcache.WithDisableTouchOnHit[Target, *model.SuggestionResponse](),
		),
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[string]*run),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.suggestions.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[Target, *model.SuggestionResponse]) {
		t := item.Key()
		r.cache.Remove(cache.SuggestionKey(t.Cluster, t.StorageType))
	})
	return r
}

// Start runs the suggestion expiry loop
func (r *Runner) Start() {
	if r.started.Swap(true) {
		return
	}
	go r.suggestions.Start()
}

// Stop cancels every run and stops the expiry loop
func (r *Runner) Stop() {
	r.cancel()
	if r.started.Swap(false) {
		r.suggestions.Stop()
	}
}

// Suggestion returns the quick suggestion for target, fetching it when the
// cached one is missing or expired.
func (r *Runner) Suggestion(ctx context.Context, target Target) (*model.SuggestionResponse, error) {
	if item := r.suggestions.Get(target); item != nil {
		return item.Value(), nil
	}

	key := cache.SuggestionKey(target.Cluster, target.StorageType)
	seq := r.cache.Issue(key)
	resp, err := r.api.NetworkSuggestions(ctx, target.Cluster, target.StorageType)
	if err == nil {
		err = resp.Suggestions.Validate()
	}
	if err != nil {
		r.cache.Fail(key, seq, err)
		return nil, fmt.Errorf("failed to get network suggestions for %s: %w", target, err)
	}

	r.suggestions.Set(target, resp, ttlcache.DefaultTTL)
	r.cache.Put(key, seq, resp)
	return resp, nil
}

// Run starts a full profile of target. While a run is in progress it
// returns that run's status instead of starting another. A finished run is
// replaced by a fresh one and its result dropped.
func (r *Runner) Run(target Target) Status {
	r.launchMu.Lock()
	defer r.launchMu.Unlock()

	r.mu.Lock()
	if ru, ok := r.runs[target.Cluster]; ok && ru.state == StateRunning {
		st := statusOf(target, ru)
		r.mu.Unlock()
		return st
	}
	ru := r.launchLocked(target)
	st := statusOf(target, ru)
	r.mu.Unlock()

	r.begin(target, ru)
	return st
}

// Rerun cancels any run in progress for target and starts a fresh one
func (r *Runner) Rerun(target Target) Status {
	r.launchMu.Lock()
	defer r.launchMu.Unlock()

	r.mu.Lock()
	if prev, ok := r.runs[target.Cluster]; ok && prev.state == StateRunning {
		prev.cancel()
		r.logger.Info("Superseding profile run", zap.Stringer("target", target), zap.Uint64("generation", prev.gen))
	}
	ru := r.launchLocked(target)
	st := statusOf(target, ru)
	r.mu.Unlock()

	r.begin(target, ru)
	return st
}

// Close returns target to idle, cancelling a run in progress and dropping its result
func (r *Runner) Close(target Target) {
	r.launchMu.Lock()
	defer r.launchMu.Unlock()

	r.mu.Lock()
	ru, ok := r.runs[target.Cluster]
	delete(r.runs, target.Cluster)
	r.mu.Unlock()

	if ok {
		ru.cancel()
	}
	r.cache.Remove(cache.ProfileKey(target.Cluster))
}

// Status returns the run status of target
func (r *Runner) Status(target Target) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	ru, ok := r.runs[target.Cluster]
	if !ok {
		return Status{Target: target, State: StateIdle}
	}
	return statusOf(target, ru)
}

// Wait blocks until the current run of target settles
func (r *Runner) Wait(ctx context.Context, target Target) (Status, error) {
	r.mu.Lock()
	ru, ok := r.runs[target.Cluster]
	r.mu.Unlock()
	if !ok {
		return Status{Target: target, State: StateIdle}, nil
	}

	select {
	case <-ctx.Done():
		return r.Status(target), ctx.Err()
	case <-ru.done:
		return r.Status(target), nil
	}
}

// Profile returns the result of the last completed run of target
func (r *Runner) Profile(target Target) (*model.NetworkProfile, bool) {
	return cache.Value[*model.NetworkProfile](r.cache, cache.ProfileKey(target.Cluster))
}

// Baseline returns the most authoritative baseline known for target
func (r *Runner) Baseline(target Target) (model.NetworkBaseline, bool) {
	return Resolve(r.cache, Sources(target))
}

// ExecutionBaseline prefers the baseline recorded with the execution over
// what is currently known for target
func (r *Runner) ExecutionBaseline(executionID string, target Target) (model.NetworkBaseline, bool) {
	return Resolve(r.cache, ExecutionSources(executionID, target))
}

func (r *Runner) launchLocked(target Target) *run {
	ctx, cancel := context.WithCancel(r.ctx)
	r.gen++
	ru := &run{
		gen:       r.gen,
		state:     StateRunning,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: time.Now(),
	}
	r.runs[target.Cluster] = ru
	return ru
}

// begin drops the previous result and starts the request. Removing the key
// first makes the cache discard any result of an earlier run.
func (r *Runner) begin(target Target, ru *run) {
	key := cache.ProfileKey(target.Cluster)
	r.cache.Remove(key)
	seq := r.cache.Issue(key)

	r.logger.Info("Starting network profile",
		zap.Stringer("target", target),
		zap.Uint64("generation", ru.gen),
		zap.Duration("duration", r.cfg.ProfileDuration))
	go r.execute(target, ru, seq)
}

func (r *Runner) execute(target Target, ru *run, seq uint64) {
	defer close(ru.done)
	defer ru.cancel()
	key := cache.ProfileKey(target.Cluster)

	profile, err := r.api.NetworkProfile(ru.ctx, target.Cluster, int(r.cfg.ProfileDuration/time.Second))
	if err == nil {
		err = profile.CheckUnits()
	}

	r.mu.Lock()
	current := r.runs[target.Cluster] == ru && ru.ctx.Err() == nil
	ru.finishedAt = time.Now()
	if err != nil {
		ru.state = StateError
		ru.err = err
	} else {
		ru.state = StateDone
	}
	r.mu.Unlock()

	if !current {
		r.metrics.ProfileFinished("superseded")
		r.logger.Debug("Dropped result of superseded profile run",
			zap.Stringer("target", target),
			zap.Uint64("generation", ru.gen))
		return
	}
	if err != nil {
		r.metrics.ProfileFinished(string(StateError))
		r.logger.Warn("Network profile failed", zap.Stringer("target", target), zap.Error(err))
		r.cache.Fail(key, seq, err)
		return
	}

	r.metrics.ProfileFinished(string(StateDone))
	r.logger.Info("Network profile finished",
		zap.Stringer("target", target),
		zap.Float64("aggregate_gbps", profile.AggregateBandwidthGbps),
		zap.Int("clients", len(profile.Clients)))
	r.cache.Put(key, seq, profile)
}

func statusOf(target Target, ru *run) Status {
	st := Status{Target: target, State: ru.state, Generation: ru.gen}
	if ru.err != nil {
		st.Error = ru.err.Error()
	}
	started := ru.startedAt
	st.StartedAt = &started
	if !ru.finishedAt.IsZero() {
		finished := ru.finishedAt
		st.FinishedAt = &finished
	}
	return st
}
