package monitor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

const cpuSampleWindow = 200 * time.Millisecond

// HostStats describes the machine the console runs on
type HostStats struct {
	CollectedAt     time.Time `json:"collected_at"`
	CPUPercent      float64   `json:"cpu_percent"`
	MemoryPercent   float64   `json:"memory_percent"`
	MemoryUsedBytes uint64    `json:"memory_used_bytes"`
	Goroutines      int       `json:"goroutines"`
}

// CollectHostStats samples CPU and memory usage once
func CollectHostStats(ctx context.Context) (HostStats, error) {
	cpuPercent, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil {
		return HostStats{}, fmt.Errorf("failed to get CPU usage: %w", err)
	}
	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostStats{}, fmt.Errorf("failed to get memory usage: %w", err)
	}

	stats := HostStats{
		CollectedAt:     time.Now(),
		MemoryPercent:   memInfo.UsedPercent,
		MemoryUsedBytes: memInfo.Used,
		Goroutines:      runtime.NumGoroutine(),
	}
	if len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}
	return stats, nil
}

// HostCollector samples host stats on an interval and keeps the latest
type HostCollector struct {
	logger   *zap.Logger
	interval time.Duration
	mu       sync.RWMutex
	latest   HostStats
	ok       bool
	stop     chan struct{}
	once     sync.Once
}

// NewHostCollector creates a new host collector
func NewHostCollector(interval time.Duration, logger *zap.Logger) *HostCollector {
	return &HostCollector{
		logger:   logger.Named("host-collector"),
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start collects once and then keeps collecting in the background
func (c *HostCollector) Start(ctx context.Context) {
	c.logger.Info("Starting host collector", zap.Duration("interval", c.interval))
	c.collect(ctx)
	go c.collectLoop(ctx)
}

// Stop stops the collector
func (c *HostCollector) Stop() {
	c.once.Do(func() {
		c.logger.Info("Stopping host collector")
		close(c.stop)
	})
}

// Latest returns the last successful sample
func (c *HostCollector) Latest() (HostStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest, c.ok
}

func (c *HostCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *HostCollector) collect(ctx context.Context) {
	stats, err := CollectHostStats(ctx)
	if err != nil {
		c.logger.Error("Failed to collect host stats", zap.Error(err))
		return
	}

	c.mu.Lock()
	c.latest = stats
	c.ok = true
	c.mu.Unlock()

	c.logger.Debug("Host stats collected",
		zap.Float64("cpu_percent", stats.CPUPercent),
		zap.Float64("memory_percent", stats.MemoryPercent))
}
