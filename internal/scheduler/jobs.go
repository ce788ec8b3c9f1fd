package scheduler

import (
	"context"
	"fmt"
	"time"
)

// Job names
const (
	FleetHealthJob    = "fleet-health"
	HistoryCleanupJob = "history-cleanup"
)

// HealthChecker asks every client agent to report in
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HistoryPruner deletes history older than a cutoff
type HistoryPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// FleetHealth returns a job that triggers a health sweep of the client fleet
func FleetHealth(checker HealthChecker) JobFunc {
	return func(ctx context.Context) error {
		if err := checker.CheckHealth(ctx); err != nil {
			return fmt.Errorf("failed to check fleet health: %w", err)
		}
		return nil
	}
}

// HistoryCleanup returns a job that deletes history older than retention
func HistoryCleanup(pruner HistoryPruner, retention time.Duration) JobFunc {
	return func(ctx context.Context) error {
		if _, err := pruner.DeleteBefore(ctx, time.Now().Add(-retention)); err != nil {
			return fmt.Errorf("failed to clean up history: %w", err)
		}
		return nil
	}
}
