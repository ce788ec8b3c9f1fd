package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/t77yq/benchconsole/internal/live"
	"github.com/t77yq/benchconsole/internal/monitor"
	"github.com/t77yq/benchconsole/internal/scheduler"
	"github.com/t77yq/benchconsole/internal/server"
)

const hostStatsInterval = 15 * time.Second

// serve runs every monitor and the view server until ctx is cancelled
func (e *env) serve(ctx context.Context, address string) error {
	if address == "" {
		address = e.cfg.Server.Address
	}
	if !e.cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	m, err := e.newMonitor()
	if err != nil {
		return err
	}

	tracker := e.newTracker()
	if err := tracker.Start(ctx); err != nil {
		return err
	}

	host := monitor.NewHostCollector(hostStatsInterval, e.logger)
	host.Start(ctx)
	e.onClose(host.Stop)

	history, err := e.openHistory()
	if err != nil {
		return err
	}

	sched := scheduler.NewCronScheduler(e.logger)
	if _, err := sched.AddJob(scheduler.FleetHealthJob, e.cfg.Schedule.HealthCheck, scheduler.FleetHealth(tracker)); err != nil {
		return err
	}
	if _, err := sched.AddJob(scheduler.HistoryCleanupJob, e.cfg.Schedule.HistoryCleanup,
		scheduler.HistoryCleanup(history, e.cfg.History.Retention)); err != nil {
		return err
	}
	sched.Start(ctx)
	e.onClose(sched.Stop)

	router := server.SetupRouter(ctx, server.Deps{
		Monitor:   m,
		Tracker:   tracker,
		Network:   e.newRunner(),
		Clusters:  e.newClusters(),
		Workloads: e.newWorkloads(),
		History:   history,
		Host:      host,
		Scheduler: sched,
		Gatherer:  e.registry,
	}, e.logger)

	srv := &http.Server{
		Addr:    address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("Serving console views", zap.String("address", address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		e.logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	e.logger.Info("Server shut down gracefully")
	return nil
}

// relay forwards the backend's WebSocket events of one execution onto the
// NATS live stream until the execution completes
func (e *env) relay(ctx context.Context, id string) error {
	src, err := live.NewWebSocketFeed(e.client.BaseURL().String(), e.logger)
	if err != nil {
		return err
	}
	js, err := e.connectNATS()
	if err != nil {
		return err
	}
	dst, err := live.NewNATSPublisher(js, e.logger)
	if err != nil {
		return err
	}
	if err := live.Relay(ctx, src, dst, id); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to relay %s: %w", id, err)
	}
	return nil
}
