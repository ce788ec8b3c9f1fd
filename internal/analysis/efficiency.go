// Package analysis derives efficiency figures from achieved throughput and a network baseline.
package analysis

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/t77yq/benchconsole/internal/model"
)

// MbpsPerMBps converts baseline megabits into achieved megabytes
const MbpsPerMBps = 8

// Band thresholds, in percent
const (
	ExcellentThreshold = 90.0
	GoodThreshold      = 70.0
	ModerateThreshold  = 50.0
)

// NoData is rendered for figures that cannot be computed
const NoData = "no data"

// Band is the presentation grade of an efficiency figure
type Band string

const (
	BandNone          Band = ""
	BandExcellent     Band = "excellent"
	BandGood          Band = "good"
	BandModerate      Band = "moderate"
	BandBelowExpected Band = "below_expected"
)

// Bottleneck is the classification of what limits an execution
type Bottleneck string

const (
	BottleneckUnknown Bottleneck = "unknown"
	BottleneckNone    Bottleneck = "none"
	BottleneckNetwork Bottleneck = "network"
	BottleneckStorage Bottleneck = "storage"
)

// Percent is a percentage that may be undefined
type Percent struct {
	Value float64
	Valid bool
}

func (p Percent) String() string {
	if !p.Valid {
		return NoData
	}
	return fmt.Sprintf("%.1f%%", p.Value)
}

// MarshalJSON encodes an undefined percentage as null
func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

// UnmarshalJSON reads null as undefined
func (p *Percent) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Percent{}
		return nil
	}
	if err := json.Unmarshal(data, &p.Value); err != nil {
		return err
	}
	p.Valid = true
	return nil
}

// Input is what an execution achieved plus its baseline, if any
type Input struct {
	AchievedMBps float64
	IOPS         float64
	LatencyUs    float64
	Baseline     *model.Suggestions
}

// FromExecution builds an Input from an execution's aggregates and its baseline snapshot
func FromExecution(e *model.Execution) Input {
	in := Input{
		AchievedMBps: e.TotalThroughputMBps,
		IOPS:         e.TotalIOPS,
		LatencyUs:    e.AvgLatencyUs,
	}
	if e.NetworkBaseline != nil {
		in.Baseline = e.NetworkBaseline.Suggestions
	}
	return in
}

// Result is the derived efficiency of one execution
type Result struct {
	HasBaseline        bool       `json:"has_baseline"`
	AchievedMBps       float64    `json:"achieved_mbps"`
	IOPS               float64    `json:"iops"`
	LatencyUs          float64    `json:"latency_us"`
	ExpectedMBps       *float64   `json:"expected_mbps,omitempty"`
	MaxMBps            *float64   `json:"max_mbps,omitempty"`
	Efficiency         Percent    `json:"efficiency"`
	Utilization        Percent    `json:"utilization"`
	Band               Band       `json:"band,omitempty"`
	Bottleneck         Bottleneck `json:"bottleneck"`
	BaselineBottleneck string     `json:"baseline_bottleneck,omitempty"`
}

// Analyze computes efficiency and utilization. Undefined figures stay
// undefined rather than becoming zero, NaN or Inf.
func Analyze(in Input) Result {
	r := Result{
		AchievedMBps: finiteOrZero(in.AchievedMBps),
		IOPS:         finiteOrZero(in.IOPS),
		LatencyUs:    finiteOrZero(in.LatencyUs),
		Bottleneck:   BottleneckUnknown,
	}

	b := in.Baseline
	if b == nil || !finite(b.EstimatedAchievableThroughputMbps) || b.EstimatedAchievableThroughputMbps <= 0 {
		return r
	}
	r.HasBaseline = true
	r.BaselineBottleneck = b.Bottleneck

	expected := MbpsToMBps(b.EstimatedAchievableThroughputMbps)
	r.ExpectedMBps = &expected
	if finite(b.MaxTheoreticalThroughputMbps) && b.MaxTheoreticalThroughputMbps > 0 {
		maxMBps := MbpsToMBps(b.MaxTheoreticalThroughputMbps)
		r.MaxMBps = &maxMBps
	}

	if !finite(in.AchievedMBps) || in.AchievedMBps < 0 {
		return r
	}
	r.Efficiency = percentOf(in.AchievedMBps, expected)
	r.Band = BandFor(r.Efficiency.Value)
	if r.MaxMBps != nil {
		r.Utilization = percentOf(in.AchievedMBps, *r.MaxMBps)
	}
	r.Bottleneck = classify(r)
	return r
}

// BandFor grades an efficiency percentage
func BandFor(efficiency float64) Band {
	switch {
	case efficiency >= ExcellentThreshold:
		return BandExcellent
	case efficiency >= GoodThreshold:
		return BandGood
	case efficiency >= ModerateThreshold:
		return BandModerate
	default:
		return BandBelowExpected
	}
}

// MbpsToMBps converts megabits per second to megabytes per second
func MbpsToMBps(v float64) float64 {
	return v / MbpsPerMBps
}

// classify attributes the gap to expected throughput. A saturated link is a
// network limit; headroom on the link with low efficiency points at storage.
func classify(r Result) Bottleneck {
	if !r.Efficiency.Valid {
		return BottleneckUnknown
	}
	if r.Utilization.Valid && r.Utilization.Value >= ExcellentThreshold {
		return BottleneckNetwork
	}
	if r.Efficiency.Value >= GoodThreshold {
		return BottleneckNone
	}
	return BottleneckStorage
}

func percentOf(v, of float64) Percent {
	if of <= 0 || !finite(of) {
		return Percent{}
	}
	p := v / of * 100
	if !finite(p) {
		return Percent{}
	}
	return Percent{Value: p, Valid: true}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOrZero(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return v
}
