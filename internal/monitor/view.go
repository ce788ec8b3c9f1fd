package monitor

import (
	"github.com/t77yq/benchconsole/internal/analysis"
	"github.com/t77yq/benchconsole/internal/cache"
	"github.com/t77yq/benchconsole/internal/model"
)

// View is everything a screen shows about one execution
type View struct {
	ExecutionID  string                `json:"execution_id"`
	Execution    *model.Execution      `json:"execution,omitempty"`
	Status       model.ExecutionStatus `json:"status,omitempty"`
	Stopping     bool                  `json:"stopping"`
	Observing    bool                  `json:"observing"`
	Stale        bool                  `json:"stale"`
	PollError    string                `json:"poll_error,omitempty"`
	MetricsError string                `json:"metrics_error,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	Samples      int                   `json:"samples"`
	Series       []SeriesPoint         `json:"series"`
	Analysis     *analysis.Result      `json:"analysis,omitempty"`
}

// View builds the current view of an execution from the cache. ok is false
// when nothing was fetched for it yet.
func (m *Monitor) View(id string) (View, bool) {
	v := View{ExecutionID: id, Series: []SeriesPoint{}, Observing: m.Observing(id)}

	entry, ok := m.cache.Get(cache.ExecutionKey(id))
	if !ok {
		return v, false
	}
	v.Stale = entry.Stale
	if entry.Err != nil {
		v.PollError = entry.Err.Error()
	}

	if exec, ok := entry.Value.(*model.Execution); ok {
		v.Execution = exec
		v.Status = exec.Status

		m.mu.Lock()
		seq, pending := m.pending[id]
		m.mu.Unlock()
		if pending && entry.Seq <= seq && !exec.Status.IsTerminal() {
			v.Stopping = true
			v.Status = model.ExecutionStatusStopping
		}
		if exec.Status == model.ExecutionStatusFailed {
			v.ErrorMessage = model.ErrorText(exec.ErrorMessage)
		}
		result := analysis.Analyze(analysis.FromExecution(exec))
		v.Analysis = &result
	}

	if metrics, ok := m.cache.Get(cache.MetricsKey(id)); ok {
		if metrics.Err != nil {
			v.MetricsError = metrics.Err.Error()
		}
		if samples, ok := metrics.Value.([]model.MetricSample); ok {
			v.Samples = len(samples)
			v.Series = BuildSeries(samples)
		}
	}
	return v, true
}
