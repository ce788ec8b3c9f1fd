package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/benchconsole/internal/cache"
)

// FetchFunc performs one request for the polled resource
type FetchFunc func(ctx context.Context) (any, error)

// Observer receives one call per settled poll
type Observer interface {
	Polled(resource string, err error)
}

// Poller schedules recurring fetches of one cache key according to a Policy.
// Results are written to the cache with a sequence number taken when the
// request was issued, so a slow response never overwrites a newer one.
type Poller struct {
	key      cache.Key
	fetch    FetchFunc
	policy   Policy
	cache    *cache.Cache
	logger   *zap.Logger
	observer Observer

	mu       sync.Mutex
	started  bool
	ctx      context.Context
	cancel   context.CancelFunc
	closed   atomic.Bool
	halted   atomic.Bool
	inflight sync.WaitGroup

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// Option configures a Poller
type Option func(*Poller)

// WithObserver attaches a poll observer
func WithObserver(o Observer) Option {
	return func(p *Poller) {
		p.observer = o
	}
}

// New creates a new Poller for key
func New(key cache.Key, fetch FetchFunc, policy Policy, c *cache.Cache, logger *zap.Logger, opts ...Option) *Poller {
	p := &Poller{
		key:    key,
		fetch:  fetch,
		policy: policy,
		cache:  c,
		logger: logger.Named("poller").With(zap.String("key", string(key))),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling. The first decision is taken immediately.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return ErrClosed
	}
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	unregister := p.cache.OnInvalidate(p.key, p.Refresh)
	go p.loop(unregister)
	return nil
}

// Stop cancels in-flight requests and waits for the poller to exit.
// Results that settle afterwards are discarded. Stop must not be called
// from a cache callback running on the poller's own goroutine.
func (p *Poller) Stop() {
	p.mu.Lock()
	started := p.started
	if !p.closed.Swap(true) && started {
		close(p.stop)
		p.cancel()
	}
	p.mu.Unlock()

	if started {
		<-p.done
		p.inflight.Wait()
	}
}

// Refresh fetches now, alongside any request already in flight, if the
// policy still allows polling.
func (p *Poller) Refresh() {
	if p.closed.Load() || p.halted.Load() {
		return
	}
	p.mu.Lock()
	if !p.started || p.closed.Load() {
		p.mu.Unlock()
		return
	}
	if d, _ := p.decide(); d != Poll {
		p.mu.Unlock()
		return
	}
	p.inflight.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.inflight.Done()
		p.fetchOnce()
	}()
}

// Wake makes the poller re-evaluate its policy without waiting out the interval
func (p *Poller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Active reports whether the poller is still scheduling requests
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.closed.Load() || p.halted.Load() {
		return false
	}
	return p.ctx.Err() == nil
}

func (p *Poller) loop(unregister func()) {
	defer close(p.done)
	defer unregister()

	for {
		decision, wait := p.decide()
		if decision == Halt {
			p.halted.Store(true)
			p.logger.Info("Polling halted by policy")
			return
		}
		if decision == Poll {
			p.fetchOnce()
		}

		timer := time.NewTimer(wait)
		select {
		case <-p.ctx.Done():
			timer.Stop()
			return
		case <-p.stop:
			timer.Stop()
			return
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (p *Poller) decide() (Decision, time.Duration) {
	e, ok := p.cache.Get(p.key)
	if ok && e.HasValue() {
		return p.policy(e.Value, true)
	}
	return p.policy(nil, false)
}

func (p *Poller) fetchOnce() {
	if p.closed.Load() {
		return
	}
	seq := p.cache.Issue(p.key)
	value, err := p.fetch(p.ctx)

	if p.closed.Load() || p.ctx.Err() != nil {
		p.logger.Debug("Dropped result settled after stop", zap.Uint64("seq", seq))
		return
	}
	if p.observer != nil {
		p.observer.Polled(p.key.Resource(), err)
	}
	if err != nil {
		p.logger.Warn("Poll failed", zap.Uint64("seq", seq), zap.Error(err))
		p.cache.Fail(p.key, seq, err)
		return
	}
	p.cache.Put(p.key, seq, value)
}
