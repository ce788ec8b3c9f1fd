// Package live provides push-based sources of execution metrics that can
// stand in for metrics polling.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/t77yq/benchconsole/internal/model"
)

// Event names used on the live channel
const (
	EventMetrics  = "metrics"
	EventStatus   = "status"
	EventComplete = "execution_complete"
)

// ErrFeed is returned when the feed reports an error for the execution
var ErrFeed = errors.New("live feed error")

// Event is one message on the live channel
type Event struct {
	Event  string                `json:"event,omitempty"`
	Data   json.RawMessage       `json:"data,omitempty"`
	Status model.ExecutionStatus `json:"status,omitempty"`
	Error  string                `json:"error,omitempty"`
}

// StatusData is the payload of a status event
type StatusData struct {
	Status   model.ExecutionStatus `json:"status"`
	Progress float64               `json:"progress"`
	Clients  int                   `json:"clients"`
}

// Sink receives decoded live events
type Sink interface {
	Sample(sample model.MetricSample)
	Status(status model.ExecutionStatus)
	Complete(status model.ExecutionStatus)
}

// Feed streams live events of one execution into sink until the execution
// completes or ctx ends.
type Feed interface {
	Name() string
	Stream(ctx context.Context, executionID string, sink Sink) error
}

// MetricsEvent builds a metrics event for sample
func MetricsEvent(sample model.MetricSample) (Event, error) {
	data, err := json.Marshal(sample)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal sample: %w", err)
	}
	return Event{Event: EventMetrics, Data: data}, nil
}

// StatusEvent builds a status event
func StatusEvent(status model.ExecutionStatus) Event {
	data, _ := json.Marshal(StatusData{Status: status})
	return Event{Event: EventStatus, Data: data}
}

// CompleteEvent builds an execution_complete event
func CompleteEvent(status model.ExecutionStatus) Event {
	return Event{Event: EventComplete, Status: status}
}

// dispatch hands ev to sink and reports whether the stream is finished
func dispatch(ev Event, sink Sink) (bool, error) {
	if ev.Error != "" {
		return true, fmt.Errorf("%w: %s", ErrFeed, ev.Error)
	}

	switch ev.Event {
	case EventMetrics:
		var sample model.MetricSample
		if err := json.Unmarshal(ev.Data, &sample); err != nil {
			return false, fmt.Errorf("failed to decode metrics event: %w", err)
		}
		sink.Sample(sample)
	case EventStatus:
		var data StatusData
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return false, fmt.Errorf("failed to decode status event: %w", err)
		}
		sink.Status(data.Status)
	case EventComplete:
		sink.Complete(ev.Status)
		return true, nil
	}
	return false, nil
}
