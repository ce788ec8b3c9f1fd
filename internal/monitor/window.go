package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/t77yq/benchconsole/internal/cache"
	"github.com/t77yq/benchconsole/internal/live"
	"github.com/t77yq/benchconsole/internal/model"
)

// windowSink keeps the metrics window of one execution from a live feed.
// It writes the same value shape the metrics poller does. Feeds replay an
// execution's history on connect, so samples at or before the newest seeded
// one are dropped.
type windowSink struct {
	monitor *Monitor
	id      string
	feed    string
	size    int

	mu       sync.Mutex
	samples  []model.MetricSample
	seededTo time.Time
	seeded   map[string]bool
	closed   atomic.Bool
}

var _ live.Sink = (*windowSink)(nil)

func newWindowSink(m *Monitor, id, feed string) *windowSink {
	s := &windowSink{monitor: m, id: id, feed: feed, size: m.cfg.MetricsWindow}
	if seed, ok := cache.Value[[]model.MetricSample](m.cache, cache.MetricsKey(id)); ok {
		s.samples = append(s.samples, seed...)
	}
	for _, sample := range s.samples {
		if sample.Timestamp.After(s.seededTo) {
			s.seededTo = sample.Timestamp.Time
		}
	}
	s.seeded = make(map[string]bool)
	for _, sample := range s.samples {
		if !s.seededTo.IsZero() && sample.Timestamp.Equal(s.seededTo) {
			s.seeded[sample.Client] = true
		}
	}
	return s
}

// replayed reports whether sample is already in the seeded window
func (s *windowSink) replayed(sample model.MetricSample) bool {
	if len(s.seeded) == 0 {
		return false
	}
	ts := sample.Timestamp.Time
	if ts.Before(s.seededTo) {
		return true
	}
	return ts.Equal(s.seededTo) && s.seeded[sample.Client]
}

func (s *windowSink) Sample(sample model.MetricSample) {
	if s.closed.Load() {
		return
	}
	s.monitor.metrics.LiveEvent(s.feed, live.EventMetrics)

	key := cache.MetricsKey(s.id)
	s.mu.Lock()
	if s.replayed(sample) {
		s.mu.Unlock()
		return
	}
	s.samples = append(s.samples, sample)
	if len(s.samples) > s.size {
		s.samples = s.samples[len(s.samples)-s.size:]
	}
	window := append([]model.MetricSample(nil), s.samples...)
	seq := s.monitor.cache.Issue(key)
	s.mu.Unlock()

	s.monitor.cache.Put(key, seq, window)
}

// Status refetches the execution only when the pushed status differs from
// the cached one. Feeds repeat unchanged statuses as heartbeats.
func (s *windowSink) Status(status model.ExecutionStatus) {
	if s.closed.Load() {
		return
	}
	s.monitor.metrics.LiveEvent(s.feed, live.EventStatus)

	key := cache.ExecutionKey(s.id)
	if exec, ok := cache.Value[*model.Execution](s.monitor.cache, key); ok && exec.Status == status {
		return
	}
	s.monitor.cache.Invalidate(key)
}

func (s *windowSink) Complete(model.ExecutionStatus) {
	if s.closed.Load() {
		return
	}
	s.monitor.metrics.LiveEvent(s.feed, live.EventComplete)
	s.monitor.cache.Invalidate(cache.ExecutionKey(s.id))
}

func (s *windowSink) close() {
	s.closed.Store(true)
}
