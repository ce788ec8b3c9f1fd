package fleet

import (
	"context"
	"strings"
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

func TestPresent(t *testing.T) {
	tests := []struct {
		name       string
		status     model.ClientStatus
		deployment string
		want       Phase
	}{
		{"OnlineWhileInstalling", model.ClientStatusOnline, "installing", PhaseDeploying},
		{"ErrorWhileConnecting", model.ClientStatusError, "connecting", PhaseDeploying},
		{"UnknownStep", model.ClientStatusOffline, "copying", PhaseDeploying},
		{"SuccessDefersToStatus", model.ClientStatusOnline, model.DeploymentSuccess, PhaseOnline},
		{"FailedDefersToStatus", model.ClientStatusError, model.DeploymentFailed, PhaseError},
		{"NoDeployment", model.ClientStatusUnreachable, "", PhaseUnreachable},
		{"Busy", model.ClientStatusBusy, "", PhaseBusy},
		{"Offline", model.ClientStatusOffline, "", PhaseOffline},
		{"Unknown", model.ClientStatusUnknown, "", PhaseUnknown},
		{"Unrecognised", model.ClientStatus("weird"), "", PhaseUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := model.Client{ID: "client-01", Status: tt.status, DeploymentStatus: tt.deployment}
			assert.Equal(t, tt.want, Present(c))
			assert.Equal(t, tt.want, RowFor(c, false).Phase)
		})
	}
}

func TestRowFor(t *testing.T) {
	t.Run("SeededOverridesStatus", func(t *testing.T) {
		row := RowFor(model.Client{ID: "client-01", Status: model.ClientStatusOffline}, true)
		assert.Equal(t, PhaseDeploying, row.Phase)
		assert.Equal(t, "~", row.Symbol)
		assert.Equal(t, "queued", row.Detail)
	})

	t.Run("DeploymentStepIsDetail", func(t *testing.T) {
		row := RowFor(model.Client{DeploymentStatus: "installing", DeploymentStep: "Installing packages"}, false)
		assert.Equal(t, "Installing packages", row.Detail)
	})

	t.Run("ErrorPreviewIsTruncated", func(t *testing.T) {
		msg := strings.Repeat("x", 200)
		row := RowFor(model.Client{Status: model.ClientStatusError, ErrorMessage: msg}, false)
		assert.True(t, row.HasError)
		assert.Less(t, len(row.Detail), len(msg))
	})

	t.Run("ErrorWithoutMessage", func(t *testing.T) {
		row := RowFor(model.Client{Status: model.ClientStatusError}, false)
		assert.Equal(t, model.NoErrorDetails, row.Detail)
	})
}

func TestPrepare(t *testing.T) {
	t.Run("AssignsPositionalIDs", func(t *testing.T) {
		out := Prepare([]model.ClientEntry{{Hostname: "10.0.0.1"}, {Hostname: "10.0.0.2"}}, model.SSHCredentials{})
		require.Len(t, out, 2)
		assert.Equal(t, "client-01", out[0].ID)
		assert.Equal(t, "client-02", out[1].ID)
	})

	t.Run("DropsBlankAndDuplicateHosts", func(t *testing.T) {
		out := Prepare([]model.ClientEntry{
			{Hostname: "10.0.0.1"},
			{Hostname: "  "},
			{Hostname: "10.0.0.1"},
			{Hostname: " 10.0.0.3 "},
			{ID: "storage-a", Hostname: "10.0.0.4"},
		}, model.SSHCredentials{})

		require.Len(t, out, 3)
		assert.Equal(t, "client-01", out[0].ID)
		assert.Equal(t, "client-02", out[1].ID)
		assert.Equal(t, "10.0.0.3", out[1].Hostname)
		assert.Equal(t, "storage-a", out[2].ID)
	})

	t.Run("InheritsDefaults", func(t *testing.T) {
		defaults := model.SSHCredentials{User: "root", KeyPath: "/root/.ssh/id_rsa", Port: 22}
		out := Prepare([]model.ClientEntry{
			{Hostname: "a"},
			{Hostname: "b", SSHCredentials: model.SSHCredentials{User: "bench", Password: "secret", Port: 2222}},
		}, defaults)

		assert.Equal(t, defaults, out[0].SSHCredentials)
		assert.Equal(t, "bench", out[1].User)
		assert.Equal(t, "secret", out[1].Password)
		assert.Empty(t, out[1].KeyPath)
		assert.Equal(t, 2222, out[1].Port)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, Prepare(nil, model.SSHCredentials{}))
	})
}

func newTracker(t *testing.T, interval time.Duration) (*testutil.Backend, *Tracker) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	backend := testutil.NewBackend(t)
	client, err := api.NewClient(backend.URL, logger)
	require.NoError(t, err)

	tracker := NewTracker(client, cache.New(logger), interval, logger)
	require.NoError(t, tracker.Start(context.Background()))
	t.Cleanup(tracker.Stop)
	return backend, tracker
}

func phaseOf(tracker *Tracker, id string) Phase {
	for _, row := range tracker.Rows() {
		if row.ID == id {
			return row.Phase
		}
	}
	return ""
}

func TestTracker(t *testing.T) {
	t.Run("PollsRosterUnconditionally", func(t *testing.T) {
		backend, tracker := newTracker(t, 20*time.Millisecond)
		backend.PutClients(model.Client{ID: "client-01", Status: model.ClientStatusOnline})

		require.Eventually(t, func() bool {
			return backend.Calls("list-clients") >= 3
		}, waitFor, tick)
		require.Eventually(t, func() bool {
			return phaseOf(tracker, "client-01") == PhaseOnline
		}, waitFor, tick)

		backend.UpdateClient("client-01", func(c *model.Client) { c.DeploymentStatus = "installing" })
		require.Eventually(t, func() bool {
			return phaseOf(tracker, "client-01") == PhaseDeploying
		}, waitFor, tick)
	})

	t.Run("RegisterSeedsDeployingSet", func(t *testing.T) {
		backend, tracker := newTracker(t, time.Hour)

		resp, err := tracker.RegisterBatch(context.Background(), Batch{
			Entries:     []model.ClientEntry{{Hostname: "10.0.0.1"}, {Hostname: "10.0.0.2"}, {Hostname: ""}},
			Defaults:    model.SSHCredentials{User: "root"},
			DeployAgent: true,
			ClusterName: "ceph-a",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"client-01", "client-02"}, resp.Added)
		assert.Equal(t, []string{"client-01", "client-02"}, tracker.Deploying())

		rows := tracker.Rows()
		require.Len(t, rows, 2)
		for _, row := range rows {
			assert.Equal(t, PhaseDeploying, row.Phase)
		}

		registered := backend.Registered()
		require.Len(t, registered, 1)
		assert.Equal(t, "root", registered[0].Clients[0].User)
		assert.Equal(t, "ceph-a", registered[0].ClusterName)

		// Backend has not started yet: still deploying by request
		backend.UpdateClient("client-01", func(c *model.Client) { c.DeploymentStatus = "" })
		tracker.Refresh()
		require.Eventually(t, func() bool {
			return backend.Calls("list-clients") >= 3
		}, waitFor, tick)
		assert.Equal(t, PhaseDeploying, phaseOf(tracker, "client-01"))

		backend.UpdateClient("client-01", func(c *model.Client) {
			c.DeploymentStatus = model.DeploymentSuccess
			c.Status = model.ClientStatusOnline
		})
		tracker.Refresh()
		require.Eventually(t, func() bool {
			return phaseOf(tracker, "client-01") == PhaseOnline
		}, waitFor, tick)
		assert.Equal(t, []string{"client-02"}, tracker.Deploying())
	})

	t.Run("EmptyBatchIsRejected", func(t *testing.T) {
		backend, tracker := newTracker(t, time.Hour)
		_, err := tracker.RegisterBatch(context.Background(), Batch{Entries: []model.ClientEntry{{Hostname: " "}}})
		assert.ErrorIs(t, err, ErrEmptyBatch)
		assert.Empty(t, backend.Registered())
	})

	t.Run("CommandsForceRefresh", func(t *testing.T) {
		backend, tracker := newTracker(t, time.Hour)
		backend.PutClients(model.Client{ID: "client-01", Status: model.ClientStatusOnline})
		tracker.Refresh()
		require.Eventually(t, func() bool {
			return phaseOf(tracker, "client-01") == PhaseOnline
		}, waitFor, tick)

		require.NoError(t, tracker.Deploy(context.Background(), "client-01"))
		require.Eventually(t, func() bool {
			return phaseOf(tracker, "client-01") == PhaseDeploying
		}, waitFor, tick)

		require.NoError(t, tracker.StopAgent(context.Background(), "client-01"))
		require.NoError(t, tracker.DeployAll(context.Background()))
		require.NoError(t, tracker.CheckHealth(context.Background()))
		require.NoError(t, tracker.PushCephConfig(context.Background(), "ceph-a"))

		require.NoError(t, tracker.Delete(context.Background(), "client-01"))
		require.Eventually(t, func() bool {
			return len(tracker.Rows()) == 0
		}, waitFor, tick)
	})

	t.Run("CommandFailureIsReturned", func(t *testing.T) {
		backend, tracker := newTracker(t, time.Hour)
		require.Eventually(t, func() bool {
			return backend.Calls("list-clients") == 1
		}, waitFor, tick)

		err := tracker.Deploy(context.Background(), "missing")
		assert.ErrorIs(t, err, api.ErrNotFound)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 1, backend.Calls("list-clients"))
	})

	t.Run("ErrorMessageIsNeverDropped", func(t *testing.T) {
		backend, tracker := newTracker(t, time.Hour)
		long := "ssh: handshake failed: " + strings.Repeat("unable to authenticate ", 10)
		backend.PutClients(
			model.Client{ID: "client-01", Status: model.ClientStatusError, ErrorMessage: long},
			model.Client{ID: "client-02", Status: model.ClientStatusError},
		)
		tracker.Refresh()
		require.Eventually(t, func() bool {
			return phaseOf(tracker, "client-01") == PhaseError
		}, waitFor, tick)

		msg, err := tracker.ErrorMessage("client-01")
		require.NoError(t, err)
		assert.Equal(t, long, msg)

		msg, err = tracker.ErrorMessage("client-02")
		require.NoError(t, err)
		assert.Equal(t, model.NoErrorDetails, msg)

		_, err = tracker.ErrorMessage("client-09")
		assert.ErrorIs(t, err, ErrClientNotFound)
	})
}
