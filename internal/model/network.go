package model

import (
	"errors"
	"fmt"
	"math"
)

// ErrInconsistentUnits is returned when baseline numbers cannot all be Mbps
var ErrInconsistentUnits = errors.New("inconsistent throughput units")

// unitTolerance is the allowed relative gap between the profile's aggregate
// bandwidth and its theoretical maximum.
const unitTolerance = 0.1

// Suggestions are the I/O parameters recommended for a network baseline.
// Throughput values are in megabits per second.
type Suggestions struct {
	RecommendedIODepth                int      `json:"recommended_io_depth"`
	RecommendedNumJobs                int      `json:"recommended_num_jobs"`
	RecommendedBlockSize              string   `json:"recommended_block_size"`
	MaxTheoreticalThroughputMbps      float64  `json:"max_theoretical_throughput_mbps"`
	EstimatedAchievableThroughputMbps float64  `json:"estimated_achievable_throughput_mbps"`
	Bottleneck                        string   `json:"bottleneck"`
	Notes                             []string `json:"notes,omitempty"`
}

// Validate checks that the throughput figures are usable as Mbps values.
func (s Suggestions) Validate() error {
	for name, v := range map[string]float64{
		"max_theoretical_throughput_mbps":      s.MaxTheoreticalThroughputMbps,
		"estimated_achievable_throughput_mbps": s.EstimatedAchievableThroughputMbps,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s=%v", ErrInconsistentUnits, name, v)
		}
	}
	if s.MaxTheoreticalThroughputMbps > 0 && s.EstimatedAchievableThroughputMbps > s.MaxTheoreticalThroughputMbps {
		return fmt.Errorf("%w: estimated %.1f exceeds theoretical %.1f",
			ErrInconsistentUnits, s.EstimatedAchievableThroughputMbps, s.MaxTheoreticalThroughputMbps)
	}
	return nil
}

// SuggestionResponse is the quick suggestion endpoint response
type SuggestionResponse struct {
	ClusterName   string      `json:"cluster_name"`
	TargetIP      string      `json:"target_ip,omitempty"`
	ClientCount   int         `json:"client_count"`
	TestedClients int         `json:"tested_clients,omitempty"`
	Suggestions   Suggestions `json:"suggestions"`
}

// ClientProfile is the measured connectivity of one client
type ClientProfile struct {
	ClientID          string  `json:"client_id"`
	ClientHostname    string  `json:"client_hostname"`
	TargetIP          string  `json:"target_ip,omitempty"`
	BandwidthMbps     float64 `json:"bandwidth_mbps,omitempty"`
	BandwidthGbps     float64 `json:"bandwidth_gbps"`
	LatencyMs         float64 `json:"latency_ms"`
	JitterMs          float64 `json:"jitter_ms,omitempty"`
	PacketLossPercent float64 `json:"packet_loss_percent,omitempty"`
	MTU               int     `json:"mtu,omitempty"`
	TestDuration      int     `json:"test_duration,omitempty"`
	Status            string  `json:"status"`
	Error             string  `json:"error,omitempty"`
}

// NetworkProfile is the full measured profile of a cluster
type NetworkProfile struct {
	ClusterName            string          `json:"cluster_name"`
	TargetIP               string          `json:"target_ip,omitempty"`
	Clients                []ClientProfile `json:"clients"`
	AggregateBandwidthGbps float64         `json:"aggregate_bandwidth_gbps"`
	MinBandwidthGbps       float64         `json:"min_bandwidth_gbps"`
	MaxBandwidthGbps       float64         `json:"max_bandwidth_gbps"`
	AvgLatencyMs           float64         `json:"avg_latency_ms"`
	Suggestions            Suggestions     `json:"suggestions"`
}

// CheckUnits verifies that the theoretical maximum (Mbps) agrees with the
// aggregate bandwidth (Gbps). A factor-of-eight gap means one side is in MB/s.
func (p NetworkProfile) CheckUnits() error {
	if err := p.Suggestions.Validate(); err != nil {
		return err
	}
	if p.AggregateBandwidthGbps <= 0 || p.Suggestions.MaxTheoreticalThroughputMbps <= 0 {
		return nil
	}
	ratio := p.Suggestions.MaxTheoreticalThroughputMbps / (p.AggregateBandwidthGbps * 1000)
	if math.Abs(ratio-1) > unitTolerance {
		return fmt.Errorf("%w: theoretical %.1f Mbps vs aggregate %.3f Gbps",
			ErrInconsistentUnits, p.Suggestions.MaxTheoreticalThroughputMbps, p.AggregateBandwidthGbps)
	}
	return nil
}

// NetworkBaseline is the baseline snapshot attached to workloads and executions
type NetworkBaseline struct {
	Source                 string          `json:"source" yaml:"source"`
	ClusterName            string          `json:"cluster_name,omitempty" yaml:"cluster_name"`
	StorageType            string          `json:"storage_type,omitempty" yaml:"storage_type"`
	AggregateBandwidthGbps *float64        `json:"aggregate_bandwidth_gbps,omitempty" yaml:"aggregate_bandwidth_gbps"`
	AvgLatencyMs           *float64        `json:"avg_latency_ms,omitempty" yaml:"avg_latency_ms"`
	Clients                []ClientProfile `json:"clients,omitempty" yaml:"-"`
	Suggestions            *Suggestions    `json:"suggestions,omitempty" yaml:"suggestions"`
	CapturedAt             *Timestamp      `json:"captured_at,omitempty" yaml:"-"`
}
