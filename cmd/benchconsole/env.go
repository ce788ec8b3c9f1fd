package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/t77yq/benchconsole/internal/api"
	"github.com/t77yq/benchconsole/internal/cache"
	"github.com/t77yq/benchconsole/internal/config"
	"github.com/t77yq/benchconsole/internal/fleet"
	"github.com/t77yq/benchconsole/internal/inventory"
	"github.com/t77yq/benchconsole/internal/live"
	"github.com/t77yq/benchconsole/internal/monitor"
	"github.com/t77yq/benchconsole/internal/network"
	"github.com/t77yq/benchconsole/internal/storage"
	"github.com/t77yq/benchconsole/internal/telemetry"
	"github.com/t77yq/benchconsole/internal/workload"
)

const (
	natsConnectRetries = 5
	natsPingInterval   = 20 * time.Second
)

// env holds what every command shares. Components are built on first use.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	client   *api.Client
	cache    *cache.Cache
	registry *prometheus.Registry
	metrics  *telemetry.Metrics

	nc        *nats.Conn
	historyDB *storage.SQLiteExecutionHistory

	closers   []func()
	closeOnce sync.Once
}

func newEnv(configPath, baseURL string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if baseURL != "" {
		cfg.API.BaseURL = baseURL
	}

	var logger *zap.Logger
	if cfg.Log.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)

	client, err := api.NewClient(cfg.API.BaseURL, logger, api.WithTimeout(cfg.API.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	return &env{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		cache:    cache.New(logger, cache.WithObserver(metrics)),
		registry: registry,
		metrics:  metrics,
	}, nil
}

func (e *env) onClose(fn func()) {
	e.closers = append(e.closers, fn)
}

func (e *env) close() {
	e.closeOnce.Do(func() {
		for i := len(e.closers) - 1; i >= 0; i-- {
			e.closers[i]()
		}
		if e.nc != nil {
			e.nc.Close()
		}
		_ = e.logger.Sync()
	})
}

// connectNATS dials the bus, retrying with a growing pause between attempts
func (e *env) connectNATS() (nats.JetStreamContext, error) {
	logger := e.logger.Named("nats")
	opts := []nats.Option{
		nats.Name(e.cfg.NATS.Name),
		nats.MaxReconnects(e.cfg.NATS.MaxReconnects),
		nats.ReconnectWait(e.cfg.NATS.ReconnectWait),
		nats.Timeout(e.cfg.NATS.ConnectTimeout),
		nats.PingInterval(natsPingInterval),
		nats.MaxPingsOutstanding(5),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS connection error", zap.String("subject", subject), zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var (
		nc  *nats.Conn
		err error
	)
	for i := 0; i < natsConnectRetries; i++ {
		nc, err = nats.Connect(e.cfg.NATS.URL, opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after retries: %w", err)
	}
	e.nc = nc
	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	if err := live.EnsureStream(js, logger); err != nil {
		return nil, err
	}
	return js, nil
}

// feed picks the live feed for live.mode. Poll mode has none.
func (e *env) feed() (live.Feed, error) {
	switch e.cfg.Live.Mode {
	case config.LiveModeWebSocket:
		return live.NewWebSocketFeed(e.client.BaseURL().String(), e.logger)
	case config.LiveModeNATS:
		js, err := e.connectNATS()
		if err != nil {
			return nil, err
		}
		return live.NewNATSFeed(js, e.logger)
	}
	return nil, nil
}

func (e *env) openHistory() (*storage.SQLiteExecutionHistory, error) {
	if e.historyDB != nil {
		return e.historyDB, nil
	}
	h, err := storage.NewSQLiteExecutionHistory(e.logger, e.cfg.History.Path)
	if err != nil {
		return nil, err
	}
	e.historyDB = h
	e.onClose(func() {
		if err := h.Close(); err != nil {
			e.logger.Warn("Failed to close history", zap.Error(err))
		}
	})
	return h, nil
}

// newMonitor builds the execution monitor with the configured feed and the
// local history as recorder
func (e *env) newMonitor() (*monitor.Monitor, error) {
	opts := []monitor.Option{monitor.WithMetrics(e.metrics)}

	f, err := e.feed()
	if err != nil {
		return nil, err
	}
	if f != nil {
		opts = append(opts, monitor.WithFeed(f))
	}

	h, err := e.openHistory()
	if err != nil {
		e.logger.Warn("Execution history disabled", zap.Error(err))
	} else {
		opts = append(opts, monitor.WithRecorder(h))
	}

	m := monitor.NewMonitor(e.client, e.cache, monitor.Config{
		StatusInterval:  e.cfg.Poll.ExecutionInterval,
		MetricsInterval: e.cfg.Poll.MetricsInterval,
		MetricsWindow:   e.cfg.Poll.MetricsWindow,
	}, e.logger, opts...)
	e.onClose(m.Close)
	return m, nil
}

func (e *env) newTracker() *fleet.Tracker {
	t := fleet.NewTracker(e.client, e.cache, e.cfg.Poll.ClientsInterval, e.logger, fleet.WithMetrics(e.metrics))
	e.onClose(t.Stop)
	return t
}

func (e *env) newRunner() *network.Runner {
	r := network.NewRunner(e.client, e.cache, network.Config{
		SuggestionTTL:   e.cfg.Network.SuggestionTTL,
		ProfileDuration: e.cfg.Network.ProfileDuration,
	}, e.logger, network.WithMetrics(e.metrics))
	r.Start()
	e.onClose(r.Stop)
	return r
}

func (e *env) newClusters() *inventory.Clusters {
	c := inventory.NewClusters(e.client, e.cache, e.logger,
		inventory.WithHealthTTL(e.cfg.Network.HealthTTL),
		inventory.WithMetrics(e.metrics))
	e.onClose(c.Stop)
	return c
}

func (e *env) newWorkloads() *workload.Workloads {
	return workload.NewWorkloads(e.client, e.cache, e.metrics, e.logger)
}
