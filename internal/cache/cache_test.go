package cache

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingObserver struct {
	mu        sync.Mutex
	applied   map[string]int
	discarded map[string]int
	failed    map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{
		applied:   make(map[string]int),
		discarded: make(map[string]int),
		failed:    make(map[string]int),
	}
}

func (o *countingObserver) Applied(r string)   { o.mu.Lock(); o.applied[r]++; o.mu.Unlock() }
func (o *countingObserver) Discarded(r string) { o.mu.Lock(); o.discarded[r]++; o.mu.Unlock() }
func (o *countingObserver) Failed(r string)    { o.mu.Lock(); o.failed[r]++; o.mu.Unlock() }

func TestCache(t *testing.T) {
	t.Run("OutOfOrderResultIsDiscarded", func(t *testing.T) {
		obs := newCountingObserver()
		c := New(zaptest.NewLogger(t), WithObserver(obs))
		key := ExecutionKey("exec-1")

		seqA := c.Issue(key)
		seqB := c.Issue(key)
		require.Less(t, seqA, seqB)

		assert.True(t, c.Put(key, seqB, "B"))
		assert.False(t, c.Put(key, seqA, "A"))

		v, ok := Value[string](c, key)
		require.True(t, ok)
		assert.Equal(t, "B", v)
		assert.Equal(t, 1, obs.discarded["execution"])
		assert.Equal(t, 1, obs.applied["execution"])
	})

	t.Run("FailureKeepsLastGoodValue", func(t *testing.T) {
		c := New(zaptest.NewLogger(t))
		key := ClientsKey

		require.True(t, c.Put(key, c.Issue(key), 3))
		boom := errors.New("connection refused")
		require.True(t, c.Fail(key, c.Issue(key), boom))

		e, ok := c.Get(key)
		require.True(t, ok)
		assert.Equal(t, 3, e.Value)
		assert.ErrorIs(t, e.Err, boom)
		assert.True(t, e.HasValue())

		require.True(t, c.Put(key, c.Issue(key), 4))
		e, _ = c.Get(key)
		assert.NoError(t, e.Err)
		assert.Equal(t, 4, e.Value)
	})

	t.Run("StaleFailureIsDiscarded", func(t *testing.T) {
		c := New(zaptest.NewLogger(t))
		key := ClustersKey

		seqA := c.Issue(key)
		seqB := c.Issue(key)
		require.True(t, c.Put(key, seqB, "fresh"))
		assert.False(t, c.Fail(key, seqA, errors.New("late timeout")))

		e, _ := c.Get(key)
		assert.NoError(t, e.Err)
	})

	t.Run("KeysAreIndependent", func(t *testing.T) {
		c := New(zaptest.NewLogger(t))

		a, b := ExecutionKey("a"), ExecutionKey("b")
		seqA := c.Issue(a)
		require.True(t, c.Put(b, c.Issue(b), "b-value"))
		require.True(t, c.Put(a, seqA, "a-value"))

		va, _ := Value[string](c, a)
		vb, _ := Value[string](c, b)
		assert.Equal(t, "a-value", va)
		assert.Equal(t, "b-value", vb)
	})

	t.Run("InvalidateMarksStaleAndRunsRefreshers", func(t *testing.T) {
		c := New(zaptest.NewLogger(t))
		key := ExecutionKey("exec-2")
		require.True(t, c.Put(key, c.Issue(key), "running"))

		var refreshed int
		cancel := c.OnInvalidate(key, func() { refreshed++ })

		var kinds []EventKind
		unsubscribe := c.Watch(key, func(ev Event) { kinds = append(kinds, ev.Kind) })
		defer unsubscribe()

		c.Invalidate(key)
		e, _ := c.Get(key)
		assert.True(t, e.Stale)
		assert.Equal(t, 1, refreshed)

		require.True(t, c.Put(key, c.Issue(key), "stopping"))
		e, _ = c.Get(key)
		assert.False(t, e.Stale)

		cancel()
		c.Invalidate(key)
		assert.Equal(t, 1, refreshed)
		assert.Equal(t, []EventKind{EventInvalidated, EventUpdated, EventInvalidated}, kinds)
	})

	t.Run("RemoveDiscardsEarlierRequests", func(t *testing.T) {
		c := New(zaptest.NewLogger(t))
		key := ProfileKey("ceph-a")

		inFlight := c.Issue(key)
		c.Remove(key)
		assert.False(t, c.Put(key, inFlight, "old run"))

		_, ok := c.Get(key)
		assert.False(t, ok)
		assert.True(t, c.Put(key, c.Issue(key), "new run"))
	})

	t.Run("SubscribeByPrefix", func(t *testing.T) {
		c := New(zaptest.NewLogger(t))

		var got []Key
		unsubscribe := c.Subscribe("execution/", func(ev Event) { got = append(got, ev.Key) })

		c.Put(ExecutionKey("x"), c.Issue(ExecutionKey("x")), 1)
		c.Put(ExecutionsKey, c.Issue(ExecutionsKey), 2)
		c.Put(MetricsKey("x"), c.Issue(MetricsKey("x")), 3)
		unsubscribe()
		c.Put(ExecutionKey("y"), c.Issue(ExecutionKey("y")), 4)

		assert.Equal(t, []Key{ExecutionKey("x")}, got)
	})

	t.Run("WatchIsExact", func(t *testing.T) {
		c := New(zaptest.NewLogger(t))

		var count int
		unsubscribe := c.Watch(ExecutionKey("ab"), func(Event) { count++ })
		defer unsubscribe()

		c.Put(ExecutionKey("abc"), c.Issue(ExecutionKey("abc")), 1)
		c.Put(ExecutionKey("ab"), c.Issue(ExecutionKey("ab")), 1)
		assert.Equal(t, 1, count)
	})

	t.Run("ValueTypeMismatch", func(t *testing.T) {
		c := New(zaptest.NewLogger(t))
		c.Put(ClientsKey, c.Issue(ClientsKey), "not a number")

		_, ok := Value[int](c, ClientsKey)
		assert.False(t, ok)
	})

	t.Run("IssuedTracksHandedOutSequences", func(t *testing.T) {
		c := New(zaptest.NewLogger(t))
		assert.Zero(t, c.Issued(ClientsKey))

		c.Issue(ClientsKey)
		seq := c.Issue(ClientsKey)
		assert.Equal(t, seq, c.Issued(ClientsKey))
		assert.Zero(t, c.Issued(ClustersKey))
	})
}

func TestKeyResource(t *testing.T) {
	assert.Equal(t, "execution", ExecutionKey("1").Resource())
	assert.Equal(t, "metrics", MetricsKey("1").Resource())
	assert.Equal(t, "suggestion", SuggestionKey("c", "file").Resource())
	assert.Equal(t, "clients", ClientsKey.Resource())
}
