package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// JetStream is an embedded NATS server with JetStream enabled. It is shut
// down when the test ends.
type JetStream struct {
	URL string
}

// NewJetStream starts a JetStream server on a random local port with its
// store in a temp dir
func NewJetStream(t *testing.T) *JetStream {
	t.Helper()

	s, err := server.NewServer(&server.Options{
		Host:           "127.0.0.1",
		Port:           server.RANDOM_PORT,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 256,
	})
	require.NoError(t, err)
	require.NoError(t, s.EnableJetStream(&server.JetStreamConfig{StoreDir: t.TempDir()}))

	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(s.Shutdown)
	return &JetStream{URL: s.ClientURL()}
}

// Connect opens a new connection. Publishers and consumers use their own
// connections, as separate console processes would.
func (j *JetStream) Connect(t *testing.T) nats.JetStreamContext {
	t.Helper()

	nc, err := nats.Connect(j.URL, nats.Timeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := nc.JetStream(nats.MaxWait(5 * time.Second))
	require.NoError(t, err)
	return js
}

// WaitForStream waits until the stream exists
func (j *JetStream) WaitForStream(t *testing.T, js nats.JetStreamContext, name string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := js.StreamInfo(name)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond, "stream %s not created", name)
}

// Messages returns the number of messages the stream retains, zero when
// it cannot be read. Safe to call from require.Eventually.
func (j *JetStream) Messages(js nats.JetStreamContext, name string) uint64 {
	info, err := js.StreamInfo(name)
	if err != nil {
		return 0
	}
	return info.State.Msgs
}
