package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/benchconsole/internal/api"
	"github.com/t77yq/benchconsole/internal/cache"
	"github.com/t77yq/benchconsole/internal/fleet"
	"github.com/t77yq/benchconsole/internal/model"
	"github.com/t77yq/benchconsole/internal/testutil"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := out
	out = &buf
	t.Cleanup(func() { out = prev })
	return &buf
}

func TestShowClients(t *testing.T) {
	setup := func(t *testing.T) (*testutil.Backend, *fleet.Tracker) {
		logger := zaptest.NewLogger(t)
		backend := testutil.NewBackend(t)
		client, err := api.NewClient(backend.URL, logger)
		require.NoError(t, err)

		tracker := fleet.NewTracker(client, cache.New(logger), time.Hour, logger)
		require.NoError(t, tracker.Start(context.Background()))
		t.Cleanup(tracker.Stop)
		return backend, tracker
	}

	t.Run("ListsRequestedDeploys", func(t *testing.T) {
		buf := captureOutput(t)
		_, tracker := setup(t)
		_, err := tracker.RegisterBatch(context.Background(), fleet.Batch{
			Entries:     []model.ClientEntry{{Hostname: "10.0.0.1"}, {Hostname: "10.0.0.2"}},
			DeployAgent: true,
		})
		require.NoError(t, err)

		assert.True(t, showClients(tracker))
		assert.Contains(t, buf.String(), "Deploy requested: client-01, client-02")
	})

	t.Run("SettledRosterHasNoFooter", func(t *testing.T) {
		buf := captureOutput(t)
		backend, tracker := setup(t)
		backend.PutClients(model.Client{ID: "client-01", Hostname: "node-1", Status: model.ClientStatusOnline})
		tracker.Refresh()
		require.Eventually(t, func() bool { return len(tracker.Rows()) == 1 }, 3*time.Second, 10*time.Millisecond)

		assert.False(t, showClients(tracker))
		assert.Contains(t, buf.String(), "node-1")
		assert.NotContains(t, buf.String(), "Deploy requested")
	})
}
