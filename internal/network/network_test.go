package network

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/benchconsole/internal/api"
	"github.com/t77yq/benchconsole/internal/cache"
	"github.com/t77yq/benchconsole/internal/model"
	"github.com/t77yq/benchconsole/internal/testutil"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

var target = Target{Cluster: "ceph-a", StorageType: "block"}

func suggestion(estimated, max float64) model.SuggestionResponse {
	return model.SuggestionResponse{
		ClusterName: "ceph-a",
		ClientCount: 2,
		Suggestions: model.Suggestions{
			RecommendedIODepth:                32,
			RecommendedNumJobs:                4,
			RecommendedBlockSize:              "1m",
			MaxTheoreticalThroughputMbps:      max,
			EstimatedAchievableThroughputMbps: estimated,
			Bottleneck:                        "network",
		},
	}
}

func profile(aggregateGbps float64) model.NetworkProfile {
	return model.NetworkProfile{
		ClusterName: "ceph-a",
		Clients: []model.ClientProfile{
			{ClientID: "client-01", BandwidthGbps: aggregateGbps / 2, LatencyMs: 0.2, Status: "ok"},
			{ClientID: "client-02", BandwidthGbps: aggregateGbps / 2, LatencyMs: 0.4, Status: "ok"},
		},
		AggregateBandwidthGbps: aggregateGbps,
		AvgLatencyMs:           0.3,
		Suggestions: model.Suggestions{
			MaxTheoreticalThroughputMbps:      aggregateGbps * 1000,
			EstimatedAchievableThroughputMbps: aggregateGbps * 800,
			Bottleneck:                        "network",
		},
	}
}

func setup(t *testing.T, cfg Config) (*testutil.Backend, *cache.Cache, *Runner) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	backend := testutil.NewBackend(t)
	client, err := api.NewClient(backend.URL, logger)
	require.NoError(t, err)

	c := cache.New(logger)
	r := NewRunner(client, c, cfg, logger)
	r.Start()
	t.Cleanup(r.Stop)
	return backend, c, r
}

func wait(t *testing.T, r *Runner) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	st, err := r.Wait(ctx, target)
	require.NoError(t, err)
	return st
}

func TestSuggestion(t *testing.T) {
	t.Run("CachedUntilExpiry", func(t *testing.T) {
		backend, c, r := setup(t, Config{SuggestionTTL: 100 * time.Millisecond})
		backend.PutSuggestion("ceph-a", suggestion(8000, 10000))

		first, err := r.Suggestion(context.Background(), target)
		require.NoError(t, err)
		second, err := r.Suggestion(context.Background(), target)
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, 1, backend.Calls("suggestions"))

		require.Eventually(t, func() bool {
			_, ok := c.Get(cache.SuggestionKey("ceph-a", "block"))
			return !ok
		}, waitFor, tick)

		_, err = r.Suggestion(context.Background(), target)
		require.NoError(t, err)
		assert.Equal(t, 2, backend.Calls("suggestions"))
	})

	t.Run("InconsistentUnitsRejected", func(t *testing.T) {
		backend, c, r := setup(t, Config{})
		backend.PutSuggestion("ceph-a", suggestion(9000, 1250))

		_, err := r.Suggestion(context.Background(), target)
		assert.ErrorIs(t, err, model.ErrInconsistentUnits)

		entry, ok := c.Get(cache.SuggestionKey("ceph-a", "block"))
		require.True(t, ok)
		assert.Error(t, entry.Err)
		assert.False(t, entry.HasValue())
	})

	t.Run("UnknownCluster", func(t *testing.T) {
		_, _, r := setup(t, Config{})
		_, err := r.Suggestion(context.Background(), Target{Cluster: "missing"})
		assert.ErrorIs(t, err, api.ErrNotFound)
	})
}

func TestRunner(t *testing.T) {
	t.Run("RunWhileRunningDoesNotStartAnother", func(t *testing.T) {
		backend, _, r := setup(t, Config{})
		backend.PutProfile("ceph-a", profile(20))
		backend.Delay("profile", 200*time.Millisecond)

		first := r.Run(target)
		second := r.Run(target)
		assert.Equal(t, StateRunning, first.State)
		assert.Equal(t, first.Generation, second.Generation)

		st := wait(t, r)
		assert.Equal(t, StateDone, st.State)
		assert.Equal(t, 1, backend.Calls("profile"))

		p, ok := r.Profile(target)
		require.True(t, ok)
		assert.Equal(t, 20.0, p.AggregateBandwidthGbps)
	})

	t.Run("RunAfterDoneReplacesResult", func(t *testing.T) {
		backend, _, r := setup(t, Config{})
		backend.PutProfile("ceph-a", profile(20))
		first := r.Run(target)
		wait(t, r)

		backend.PutProfile("ceph-a", profile(40))
		second := r.Run(target)
		assert.Greater(t, second.Generation, first.Generation)

		st := wait(t, r)
		assert.Equal(t, StateDone, st.State)
		assert.Equal(t, 2, backend.Calls("profile"))
		p, ok := r.Profile(target)
		require.True(t, ok)
		assert.Equal(t, 40.0, p.AggregateBandwidthGbps)
	})

	t.Run("RerunSupersedesRunInProgress", func(t *testing.T) {
		backend, _, r := setup(t, Config{})
		backend.PutProfile("ceph-a", profile(20))
		backend.Delay("profile", 300*time.Millisecond)

		first := r.Run(target)
		require.Eventually(t, func() bool { return backend.Calls("profile") == 1 }, waitFor, tick)

		backend.PutProfile("ceph-a", profile(40))
		second := r.Rerun(target)
		assert.Greater(t, second.Generation, first.Generation)
		assert.Equal(t, StateRunning, second.State)

		st := wait(t, r)
		assert.Equal(t, StateDone, st.State)
		assert.Equal(t, second.Generation, st.Generation)
		assert.Equal(t, 2, backend.Calls("profile"))

		p, ok := r.Profile(target)
		require.True(t, ok)
		assert.Equal(t, 40.0, p.AggregateBandwidthGbps)
	})

	t.Run("CloseReturnsToIdle", func(t *testing.T) {
		backend, _, r := setup(t, Config{})
		backend.PutProfile("ceph-a", profile(20))
		r.Run(target)
		wait(t, r)

		r.Close(target)
		assert.Equal(t, StateIdle, r.Status(target).State)
		_, ok := r.Profile(target)
		assert.False(t, ok)
	})

	t.Run("CloseCancelsRunInProgress", func(t *testing.T) {
		backend, _, r := setup(t, Config{})
		backend.PutProfile("ceph-a", profile(20))
		backend.Delay("profile", time.Second)

		r.Run(target)
		r.Close(target)
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, StateIdle, r.Status(target).State)
		_, ok := r.Profile(target)
		assert.False(t, ok)
	})

	t.Run("UnitMismatchIsAnError", func(t *testing.T) {
		backend, c, r := setup(t, Config{})
		bad := profile(10)
		bad.Suggestions.MaxTheoreticalThroughputMbps = 1250
		bad.Suggestions.EstimatedAchievableThroughputMbps = 1000
		backend.PutProfile("ceph-a", bad)

		r.Run(target)
		st := wait(t, r)
		assert.Equal(t, StateError, st.State)
		assert.Contains(t, st.Error, "inconsistent")

		entry, ok := c.Get(cache.ProfileKey("ceph-a"))
		require.True(t, ok)
		assert.ErrorIs(t, entry.Err, model.ErrInconsistentUnits)
	})

	t.Run("StorageTypesShareClusterProfile", func(t *testing.T) {
		backend, _, r := setup(t, Config{})
		backend.PutProfile("ceph-a", profile(20))
		backend.PutSuggestion("ceph-a", suggestion(8000, 10000))
		backend.Delay("profile", 100*time.Millisecond)
		file := Target{Cluster: "ceph-a", StorageType: "file"}

		first := r.Run(target)
		second := r.Run(file)
		assert.Equal(t, first.Generation, second.Generation)
		wait(t, r)
		assert.Equal(t, 1, backend.Calls("profile"))
		assert.Equal(t, StateDone, r.Status(file).State)

		_, err := r.Suggestion(context.Background(), file)
		require.NoError(t, err)
		b, ok := r.Baseline(file)
		require.True(t, ok)
		assert.Equal(t, SourceProfile, b.Source)
		assert.Equal(t, 20.0, *b.AggregateBandwidthGbps)

		r.Close(file)
		assert.Equal(t, StateIdle, r.Status(target).State)
		_, ok = r.Profile(target)
		assert.False(t, ok)
	})

	t.Run("IdleWithoutRun", func(t *testing.T) {
		_, _, r := setup(t, Config{})
		st, err := r.Wait(context.Background(), target)
		require.NoError(t, err)
		assert.Equal(t, StateIdle, st.State)
	})
}

func TestResolve(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("ProfileWinsOverSuggestion", func(t *testing.T) {
		c := cache.New(logger)
		s := suggestion(8000, 10000)
		p := profile(25)
		c.Put(cache.SuggestionKey("ceph-a", "block"), c.Issue(cache.SuggestionKey("ceph-a", "block")), &s)
		c.Put(cache.ProfileKey("ceph-a"), c.Issue(cache.ProfileKey("ceph-a")), &p)

		b, ok := Resolve(c, Sources(target))
		require.True(t, ok)
		assert.Equal(t, SourceProfile, b.Source)
		require.NotNil(t, b.AggregateBandwidthGbps)
		assert.Equal(t, 25.0, *b.AggregateBandwidthGbps)
		assert.Equal(t, 0.3, *b.AvgLatencyMs)
		assert.Equal(t, 20000.0, b.Suggestions.EstimatedAchievableThroughputMbps)
		assert.NotNil(t, b.CapturedAt)
	})

	t.Run("SuggestionIsFallback", func(t *testing.T) {
		c := cache.New(logger)
		s := suggestion(8000, 10000)
		c.Put(cache.SuggestionKey("ceph-a", "block"), c.Issue(cache.SuggestionKey("ceph-a", "block")), &s)

		b, ok := Resolve(c, Sources(target))
		require.True(t, ok)
		assert.Equal(t, SourceSuggestion, b.Source)
		assert.Nil(t, b.AggregateBandwidthGbps)
		assert.Equal(t, 8000.0, b.Suggestions.EstimatedAchievableThroughputMbps)
	})

	t.Run("FailedProfileFallsThrough", func(t *testing.T) {
		c := cache.New(logger)
		s := suggestion(8000, 10000)
		c.Put(cache.SuggestionKey("ceph-a", "block"), c.Issue(cache.SuggestionKey("ceph-a", "block")), &s)
		c.Fail(cache.ProfileKey("ceph-a"), c.Issue(cache.ProfileKey("ceph-a")), assert.AnError)

		b, ok := Resolve(c, Sources(target))
		require.True(t, ok)
		assert.Equal(t, SourceSuggestion, b.Source)
	})

	t.Run("ExecutionSnapshotFirst", func(t *testing.T) {
		c := cache.New(logger)
		p := profile(25)
		c.Put(cache.ProfileKey("ceph-a"), c.Issue(cache.ProfileKey("ceph-a")), &p)
		agg := 12.0
		exec := &model.Execution{ID: "exec-1", NetworkBaseline: &model.NetworkBaseline{Source: "profile", AggregateBandwidthGbps: &agg}}
		c.Put(cache.ExecutionKey("exec-1"), c.Issue(cache.ExecutionKey("exec-1")), exec)

		b, ok := Resolve(c, ExecutionSources("exec-1", target))
		require.True(t, ok)
		assert.Equal(t, 12.0, *b.AggregateBandwidthGbps)

		exec.NetworkBaseline = nil
		b, ok = Resolve(c, ExecutionSources("exec-1", target))
		require.True(t, ok)
		assert.Equal(t, 25.0, *b.AggregateBandwidthGbps)
	})

	t.Run("Nothing", func(t *testing.T) {
		_, ok := Resolve(cache.New(logger), Sources(target))
		assert.False(t, ok)
	})
}

func TestSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := Snapshot(model.NetworkBaseline{Source: SourceProfile}, target, now)
	assert.Equal(t, "ceph-a", b.ClusterName)
	assert.Equal(t, "block", b.StorageType)
	require.NotNil(t, b.CapturedAt)
	assert.True(t, b.CapturedAt.Equal(now))
}
