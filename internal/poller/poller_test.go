package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/benchconsole/internal/cache"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type discardCounter struct {
	discarded atomic.Int32
}

func (d *discardCounter) Applied(string)   {}
func (d *discardCounter) Failed(string)    {}
func (d *discardCounter) Discarded(string) { d.discarded.Add(1) }

func TestPoller(t *testing.T) {
	t.Run("EveryPollsRepeatedly", func(t *testing.T) {
		c := cache.New(zaptest.NewLogger(t))
		var calls atomic.Int32
		p := New(cache.ClientsKey, func(ctx context.Context) (any, error) {
			return int(calls.Add(1)), nil
		}, Every(5*time.Millisecond), c, zaptest.NewLogger(t))

		require.NoError(t, p.Start(context.Background()))
		defer p.Stop()

		assert.Eventually(t, func() bool { return calls.Load() >= 3 }, waitFor, tick)
		v, ok := cache.Value[int](c, cache.ClientsKey)
		require.True(t, ok)
		assert.GreaterOrEqual(t, v, 1)
		assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)
	})

	t.Run("WhileHaltsAndNeverResumes", func(t *testing.T) {
		c := cache.New(zaptest.NewLogger(t))
		key := cache.ExecutionKey("e1")
		statuses := []string{"running", "running", "completed"}
		var calls atomic.Int32
		p := New(key, func(ctx context.Context) (any, error) {
			n := int(calls.Add(1))
			if n > len(statuses) {
				return "running", nil
			}
			return statuses[n-1], nil
		}, While(5*time.Millisecond, func(last any) bool { return last != "completed" }), c, zaptest.NewLogger(t))

		require.NoError(t, p.Start(context.Background()))
		select {
		case <-p.done:
		case <-time.After(waitFor):
			t.Fatal("poller did not halt")
		}

		assert.True(t, p.halted.Load())
		assert.False(t, p.Active())
		assert.Equal(t, int32(3), calls.Load())

		p.Refresh()
		c.Invalidate(key)
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, int32(3), calls.Load())

		p.Stop()
		assert.ErrorIs(t, p.Start(context.Background()), ErrClosed)
	})

	t.Run("StopDiscardsInFlightResult", func(t *testing.T) {
		c := cache.New(zaptest.NewLogger(t))
		key := cache.MetricsKey("e2")
		started := make(chan struct{})
		p := New(key, func(ctx context.Context) (any, error) {
			close(started)
			<-ctx.Done()
			return "late", nil
		}, Every(time.Hour), c, zaptest.NewLogger(t))

		require.NoError(t, p.Start(context.Background()))
		<-started
		p.Stop()

		_, ok := c.Get(key)
		assert.False(t, ok)
	})

	t.Run("RefreshSupersedesSlowPoll", func(t *testing.T) {
		obs := &discardCounter{}
		c := cache.New(zaptest.NewLogger(t), cache.WithObserver(obs))
		key := cache.ExecutionKey("e3")

		gate := make(chan struct{})
		firstStarted := make(chan struct{})
		var calls atomic.Int32
		p := New(key, func(ctx context.Context) (any, error) {
			if calls.Add(1) == 1 {
				close(firstStarted)
				<-gate
				return "running", nil
			}
			return "stopping", nil
		}, Every(time.Hour), c, zaptest.NewLogger(t))

		require.NoError(t, p.Start(context.Background()))
		defer p.Stop()
		<-firstStarted

		p.Refresh()
		assert.Eventually(t, func() bool {
			v, ok := cache.Value[string](c, key)
			return ok && v == "stopping"
		}, waitFor, tick)

		close(gate)
		assert.Eventually(t, func() bool { return obs.discarded.Load() == 1 }, waitFor, tick)

		v, _ := cache.Value[string](c, key)
		assert.Equal(t, "stopping", v)
	})

	t.Run("InvalidateForcesImmediateFetch", func(t *testing.T) {
		c := cache.New(zaptest.NewLogger(t))
		var calls atomic.Int32
		p := New(cache.ClientsKey, func(ctx context.Context) (any, error) {
			return int(calls.Add(1)), nil
		}, Every(time.Hour), c, zaptest.NewLogger(t))

		require.NoError(t, p.Start(context.Background()))
		defer p.Stop()
		assert.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)

		c.Invalidate(cache.ClientsKey)
		assert.Eventually(t, func() bool {
			v, ok := cache.Value[int](c, cache.ClientsKey)
			return ok && v == 2
		}, waitFor, tick)
	})

	t.Run("IdleSkipsFetchUntilWoken", func(t *testing.T) {
		c := cache.New(zaptest.NewLogger(t))
		var gate atomic.Bool
		var calls atomic.Int32
		policy := func(any, bool) (Decision, time.Duration) {
			if gate.Load() {
				return Poll, time.Hour
			}
			return Idle, time.Hour
		}
		p := New(cache.MetricsKey("e4"), func(ctx context.Context) (any, error) {
			calls.Add(1)
			return []int{1}, nil
		}, policy, c, zaptest.NewLogger(t))

		require.NoError(t, p.Start(context.Background()))
		defer p.Stop()

		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, int32(0), calls.Load())

		p.Refresh()
		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, int32(0), calls.Load())

		gate.Store(true)
		p.Wake()
		assert.Eventually(t, func() bool { return calls.Load() == 1 }, waitFor, tick)
	})

	t.Run("FailureIsRetriedOnNextTick", func(t *testing.T) {
		c := cache.New(zaptest.NewLogger(t))
		var mu sync.Mutex
		results := []error{nil, errors.New("timeout"), nil}
		var calls int
		p := New(cache.ClustersKey, func(ctx context.Context) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls <= len(results) && results[calls-1] != nil {
				return nil, results[calls-1]
			}
			if calls > len(results) {
				return len(results), nil
			}
			return calls, nil
		}, Every(5*time.Millisecond), c, zaptest.NewLogger(t))

		require.NoError(t, p.Start(context.Background()))
		defer p.Stop()

		assert.Eventually(t, func() bool {
			e, ok := c.Get(cache.ClustersKey)
			return ok && e.Err == nil && e.Value == 3
		}, waitFor, tick)
	})
}

func TestWhilePolicy(t *testing.T) {
	policy := While(2*time.Second, func(last any) bool { return last == "running" })

	d, wait := policy(nil, false)
	assert.Equal(t, Poll, d)
	assert.Equal(t, 2*time.Second, wait)

	d, _ = policy("running", true)
	assert.Equal(t, Poll, d)

	d, _ = policy("failed", true)
	assert.Equal(t, Halt, d)
}
