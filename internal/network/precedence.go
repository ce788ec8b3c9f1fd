package network

import (
	"time"

	"github.com/t77yq/benchconsole/internal/cache"
	"github.com/t77yq/benchconsole/internal/model"
)

// Baseline source names
const (
	SourceExecution  = "execution"
	SourceProfile    = "profile"
	SourceSuggestion = "suggestion"
)

// Source is one place a baseline can be read from
type Source struct {
	Name string
	Key  cache.Key
}

// Sources lists where the baseline of a target is found, most authoritative first
func Sources(target Target) []Source {
	return []Source{
		{Name: SourceProfile, Key: cache.ProfileKey(target.Cluster)},
		{Name: SourceSuggestion, Key: cache.SuggestionKey(target.Cluster, target.StorageType)},
	}
}

// ExecutionSources puts the baseline recorded with an execution ahead of the target's sources
func ExecutionSources(executionID string, target Target) []Source {
	return append([]Source{{Name: SourceExecution, Key: cache.ExecutionKey(executionID)}}, Sources(target)...)
}

// Resolve returns the baseline of the first source that has one
func Resolve(c *cache.Cache, sources []Source) (model.NetworkBaseline, bool) {
	for _, src := range sources {
		entry, ok := c.Get(src.Key)
		if !ok || entry.Value == nil {
			continue
		}
		b, ok := baselineOf(entry.Value)
		if !ok {
			continue
		}
		if b.Source == "" {
			b.Source = src.Name
		}
		if b.CapturedAt == nil && !entry.UpdatedAt.IsZero() {
			ts := model.NewTimestamp(entry.UpdatedAt)
			b.CapturedAt = &ts
		}
		return b, true
	}
	return model.NetworkBaseline{}, false
}

func baselineOf(v any) (model.NetworkBaseline, bool) {
	switch v := v.(type) {
	case *model.NetworkProfile:
		if v == nil {
			return model.NetworkBaseline{}, false
		}
		suggestions := v.Suggestions
		aggregate, latency := v.AggregateBandwidthGbps, v.AvgLatencyMs
		return model.NetworkBaseline{
			Source:                 SourceProfile,
			ClusterName:            v.ClusterName,
			AggregateBandwidthGbps: &aggregate,
			AvgLatencyMs:           &latency,
			Clients:                v.Clients,
			Suggestions:            &suggestions,
		}, true
	case *model.SuggestionResponse:
		if v == nil {
			return model.NetworkBaseline{}, false
		}
		suggestions := v.Suggestions
		return model.NetworkBaseline{
			Source:      SourceSuggestion,
			ClusterName: v.ClusterName,
			Suggestions: &suggestions,
		}, true
	case *model.Execution:
		if v == nil || v.NetworkBaseline == nil {
			return model.NetworkBaseline{}, false
		}
		b := *v.NetworkBaseline
		return b, true
	case *model.NetworkBaseline:
		if v == nil {
			return model.NetworkBaseline{}, false
		}
		return *v, true
	}
	return model.NetworkBaseline{}, false
}

// Snapshot stamps a resolved baseline for attachment to a workload
func Snapshot(b model.NetworkBaseline, target Target, now time.Time) model.NetworkBaseline {
	b.ClusterName = target.Cluster
	b.StorageType = target.StorageType
	ts := model.NewTimestamp(now)
	b.CapturedAt = &ts
	return b
}
