// Package monitor follows the lifecycle of benchmark executions: status and
// metrics polling, control commands and the derived views built on them.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/benchconsole/internal/analysis"
	"github.com/t77yq/benchconsole/internal/cache"
	"github.com/t77yq/benchconsole/internal/live"
	"github.com/t77yq/benchconsole/internal/model"
	"github.com/t77yq/benchconsole/internal/poller"
	"github.com/t77yq/benchconsole/internal/telemetry"
)

const (
	DefaultStatusInterval = 2 * time.Second
	DefaultMetricsWindow  = 120
	recordTimeout         = 10 * time.Second
)

// ExecutionAPI is the part of the backend the monitor talks to
type ExecutionAPI interface {
	ListExecutions(ctx context.Context, limit int) (*model.ExecutionList, error)
	StartExecution(ctx context.Context, req model.StartExecutionRequest) (*model.StartExecutionResponse, error)
	GetExecution(ctx context.Context, id string) (*model.Execution, error)
	SendCommand(ctx context.Context, id string, cmd model.Command) error
	ExecutionCommands(ctx context.Context, id string) (*model.CommandLog, error)
	LatestMetrics(ctx context.Context, id string, count int) ([]model.MetricSample, error)
}

// Recorder stores executions that reached a terminal status
type Recorder interface {
	Record(ctx context.Context, exec model.Execution, result analysis.Result) error
}

// Config holds the polling cadence of the monitor
type Config struct {
	StatusInterval  time.Duration
	MetricsInterval time.Duration
	MetricsWindow   int
}

// Option configures a Monitor
type Option func(*Monitor)

// WithFeed replaces metrics polling with a push-based feed. Polling takes
// over if the feed fails.
func WithFeed(feed live.Feed) Option {
	return func(m *Monitor) {
		m.feed = feed
	}
}

// WithRecorder records executions once they finish
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) {
		m.recorder = r
	}
}

// WithMetrics attaches prometheus counters
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

// Monitor observes executions
type Monitor struct {
	logger   *zap.Logger
	api      ExecutionAPI
	cache    *cache.Cache
	cfg      Config
	feed     live.Feed
	recorder Recorder
	metrics  *telemetry.Metrics

	mu      sync.Mutex
	closed  bool
	watches map[string]*watch
	// pending holds the last status sequence issued before a stop command
	// was accepted. Status values at or below it still show "stopping".
	pending map[string]uint64
}

type watch struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	status   *poller.Poller
	unwatch  func()
	recorded atomic.Bool

	mu      sync.Mutex
	metrics *poller.Poller
	sink    *windowSink
}

// NewMonitor creates a new Monitor
func NewMonitor(api ExecutionAPI, c *cache.Cache, cfg Config, logger *zap.Logger, opts ...Option) *Monitor {
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = cfg.StatusInterval
	}
	if cfg.MetricsWindow <= 0 {
		cfg.MetricsWindow = DefaultMetricsWindow
	}

	m := &Monitor{
		logger:  logger.Named("execution-monitor"),
		api:     api,
		cache:   c,
		cfg:     cfg,
		watches: make(map[string]*watch),
		pending: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe starts polling the status of an execution and its metrics window.
// Polling ends by itself once the execution is terminal and is only
// restarted by another Observe after Unobserve. An execution already known
// to be terminal is not polled at all.
func (m *Monitor) Observe(ctx context.Context, id string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if _, ok := m.watches[id]; ok {
		m.mu.Unlock()
		return nil
	}
	if exec, ok := cache.Value[*model.Execution](m.cache, cache.ExecutionKey(id)); ok && exec.Status.IsTerminal() {
		m.mu.Unlock()
		m.logger.Debug("Execution already terminal", zap.String("execution_id", id))
		return nil
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &watch{id: id, ctx: wctx, cancel: cancel}
	w.status = poller.New(cache.ExecutionKey(id), func(ctx context.Context) (any, error) {
		return m.api.GetExecution(ctx, id)
	}, m.statusPolicy(), m.cache, m.logger, poller.WithObserver(m.metrics))
	w.unwatch = m.cache.Watch(cache.ExecutionKey(id), func(ev cache.Event) {
		m.onStatus(w, ev)
	})
	m.watches[id] = w
	m.mu.Unlock()

	if err := w.status.Start(wctx); err != nil {
		m.Unobserve(id)
		return fmt.Errorf("failed to start status poller: %w", err)
	}
	m.startMetrics(w)

	m.logger.Info("Observing execution", zap.String("execution_id", id))
	return nil
}

// Unobserve stops every poller of the execution. Results still in flight are discarded.
func (m *Monitor) Unobserve(id string) {
	m.mu.Lock()
	w, ok := m.watches[id]
	delete(m.watches, id)
	delete(m.pending, id)
	m.mu.Unlock()

	if !ok {
		return
	}
	w.stop()
	m.logger.Info("Stopped observing execution", zap.String("execution_id", id))
}

// Observing reports whether the execution is still being polled
func (m *Monitor) Observing(id string) bool {
	m.mu.Lock()
	w, ok := m.watches[id]
	m.mu.Unlock()
	return ok && w.status.Active()
}

// Close stops observing every execution
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	watches := make([]*watch, 0, len(m.watches))
	for id, w := range m.watches {
		watches = append(watches, w)
		delete(m.watches, id)
	}
	m.mu.Unlock()

	for _, w := range watches {
		w.stop()
	}
}

// Stop asks the backend to stop an execution
func (m *Monitor) Stop(ctx context.Context, id string) error {
	return m.command(ctx, id, model.CommandStop)
}

// Pause asks the backend to pause a running execution
func (m *Monitor) Pause(ctx context.Context, id string) error {
	return m.command(ctx, id, model.CommandPause)
}

// Resume asks the backend to resume a paused execution
func (m *Monitor) Resume(ctx context.Context, id string) error {
	return m.command(ctx, id, model.CommandResume)
}

func (m *Monitor) command(ctx context.Context, id string, cmd model.Command) error {
	key := cache.ExecutionKey(id)
	if exec, ok := cache.Value[*model.Execution](m.cache, key); ok && !exec.Status.Allows(cmd) {
		err := fmt.Errorf("%w: cannot %s execution in status %s", ErrInvalidTransition, cmd, exec.Status)
		m.metrics.Command(string(cmd), err)
		return err
	}

	if err := m.api.SendCommand(ctx, id, cmd); err != nil {
		m.metrics.Command(string(cmd), err)
		m.logger.Error("Command failed",
			zap.String("execution_id", id),
			zap.String("command", string(cmd)),
			zap.Error(err))
		return fmt.Errorf("failed to %s execution: %w", cmd, err)
	}
	m.metrics.Command(string(cmd), nil)

	if cmd == model.CommandStop {
		m.mu.Lock()
		m.pending[id] = m.cache.Issued(key)
		m.mu.Unlock()
	}
	m.logger.Info("Command accepted",
		zap.String("execution_id", id),
		zap.String("command", string(cmd)))

	m.cache.Invalidate(key)
	return nil
}

// StartExecution launches a workload and returns the new execution id
func (m *Monitor) StartExecution(ctx context.Context, req model.StartExecutionRequest) (*model.StartExecutionResponse, error) {
	resp, err := m.api.StartExecution(ctx, req)
	m.metrics.Command("start", err)
	if err != nil {
		m.logger.Error("Failed to start execution", zap.String("workload", req.WorkloadName), zap.Error(err))
		return nil, fmt.Errorf("failed to start execution: %w", err)
	}

	m.logger.Info("Execution started",
		zap.String("execution_id", resp.ExecutionID),
		zap.String("workload", req.WorkloadName))
	m.cache.Invalidate(cache.ExecutionsKey)
	return resp, nil
}

// List fetches the most recent executions and stores them in the cache
func (m *Monitor) List(ctx context.Context, limit int) (*model.ExecutionList, error) {
	seq := m.cache.Issue(cache.ExecutionsKey)
	list, err := m.api.ListExecutions(ctx, limit)
	if err != nil {
		m.cache.Fail(cache.ExecutionsKey, seq, err)
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	m.cache.Put(cache.ExecutionsKey, seq, list)
	return list, nil
}

// Commands fetches the remote command log of an execution
func (m *Monitor) Commands(ctx context.Context, id string) (*model.CommandLog, error) {
	log, err := m.api.ExecutionCommands(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get execution commands: %w", err)
	}
	return log, nil
}

// Wait blocks until the execution is seen in a terminal status
func (m *Monitor) Wait(ctx context.Context, id string) (*model.Execution, error) {
	key := cache.ExecutionKey(id)
	done := make(chan *model.Execution, 1)
	unwatch := m.cache.Watch(key, func(ev cache.Event) {
		if exec, ok := ev.Entry.Value.(*model.Execution); ok && ev.Kind == cache.EventUpdated && exec.Status.IsTerminal() {
			select {
			case done <- exec:
			default:
			}
		}
	})
	defer unwatch()

	if exec, ok := cache.Value[*model.Execution](m.cache, key); ok && exec.Status.IsTerminal() {
		return exec, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case exec := <-done:
		return exec, nil
	}
}

func (m *Monitor) statusPolicy() poller.Policy {
	return poller.While(m.cfg.StatusInterval, func(last any) bool {
		exec, ok := last.(*model.Execution)
		return !ok || !exec.Status.IsTerminal()
	})
}

// metricsPolicy follows the cached status of the execution: fetch while
// running, wait while pending or paused, halt once terminal.
func (m *Monitor) metricsPolicy(id string) poller.Policy {
	return func(any, bool) (poller.Decision, time.Duration) {
		exec, ok := cache.Value[*model.Execution](m.cache, cache.ExecutionKey(id))
		switch {
		case !ok:
			return poller.Idle, m.cfg.MetricsInterval
		case exec.Status.IsTerminal():
			return poller.Halt, 0
		case exec.Status == model.ExecutionStatusRunning:
			return poller.Poll, m.cfg.MetricsInterval
		}
		return poller.Idle, m.cfg.MetricsInterval
	}
}

func (m *Monitor) startMetrics(w *watch) {
	if m.feed == nil {
		m.startMetricsPoller(w)
		return
	}

	sink := newWindowSink(m, w.id, m.feed.Name())
	w.mu.Lock()
	w.sink = sink
	w.mu.Unlock()

	go func() {
		err := m.feed.Stream(w.ctx, w.id, sink)
		if err == nil || w.ctx.Err() != nil {
			return
		}
		m.logger.Warn("Live feed failed, polling metrics instead",
			zap.String("execution_id", w.id),
			zap.String("feed", m.feed.Name()),
			zap.Error(err))
		sink.close()
		m.startMetricsPoller(w)
	}()
}

func (m *Monitor) startMetricsPoller(w *watch) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.metrics != nil || w.ctx.Err() != nil {
		return
	}

	p := poller.New(cache.MetricsKey(w.id), func(ctx context.Context) (any, error) {
		return m.api.LatestMetrics(ctx, w.id, m.cfg.MetricsWindow)
	}, m.metricsPolicy(w.id), m.cache, m.logger, poller.WithObserver(m.metrics))
	if err := p.Start(w.ctx); err != nil {
		m.logger.Error("Failed to start metrics poller", zap.String("execution_id", w.id), zap.Error(err))
		return
	}
	w.metrics = p
}

func (m *Monitor) onStatus(w *watch, ev cache.Event) {
	if ev.Kind != cache.EventUpdated {
		return
	}
	exec, ok := ev.Entry.Value.(*model.Execution)
	if !ok {
		return
	}

	m.mu.Lock()
	if seq, ok := m.pending[w.id]; ok && ev.Entry.Seq > seq {
		delete(m.pending, w.id)
	}
	m.mu.Unlock()

	w.mu.Lock()
	if w.metrics != nil {
		w.metrics.Wake()
	}
	w.mu.Unlock()

	if exec.Status.IsTerminal() {
		m.finish(w, exec)
	}
}

// finish runs once per watch when the execution turns terminal
func (m *Monitor) finish(w *watch, exec *model.Execution) {
	if w.recorded.Swap(true) {
		return
	}
	m.logger.Info("Execution finished",
		zap.String("execution_id", exec.ID),
		zap.String("status", string(exec.Status)))

	w.cancel()
	if m.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := m.recorder.Record(ctx, *exec, analysis.Analyze(analysis.FromExecution(exec))); err != nil {
		m.logger.Error("Failed to record execution history",
			zap.String("execution_id", exec.ID),
			zap.Error(err))
	}
}

func (w *watch) stop() {
	w.cancel()
	w.unwatch()
	w.status.Stop()

	w.mu.Lock()
	metrics, sink := w.metrics, w.sink
	w.mu.Unlock()
	if metrics != nil {
		metrics.Stop()
	}
	if sink != nil {
		sink.close()
	}
}
