package live

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/benchconsole/internal/model"
)

const (
	// StreamName is the JetStream stream carrying live events
	StreamName    = "LIVE_METRICS"
	subjectPrefix = "metrics.live."
	streamMaxAge  = 24 * time.Hour
	bufferSize    = 256
)

// Subject returns the subject live events of an execution are published on
func Subject(executionID string) string {
	return subjectPrefix + strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(executionID)
}

// EnsureStream creates the live stream if it does not exist yet
func EnsureStream(js nats.JetStreamContext, logger *zap.Logger) error {
	_, err := js.StreamInfo(StreamName)
	if err == nil {
		return nil
	}
	if err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{subjectPrefix + "*"},
		Storage:  nats.FileStorage,
		MaxAge:   streamMaxAge,
		MaxMsgs:  -1,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	logger.Info("Created live stream", zap.String("stream", StreamName))
	return nil
}

// NATSFeed consumes live events from JetStream
type NATSFeed struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewNATSFeed creates a new JetStream-backed feed
func NewNATSFeed(js nats.JetStreamContext, logger *zap.Logger) (*NATSFeed, error) {
	logger = logger.Named("live-nats")
	if err := EnsureStream(js, logger); err != nil {
		return nil, err
	}
	return &NATSFeed{logger: logger, js: js}, nil
}

// Name implements Feed
func (f *NATSFeed) Name() string {
	return "nats"
}

// Stream implements Feed. Events already retained in the stream are replayed first.
func (f *NATSFeed) Stream(ctx context.Context, executionID string, sink Sink) error {
	msgs := make(chan *nats.Msg, bufferSize)
	done := make(chan struct{})
	defer close(done)

	sub, err := f.js.Subscribe(Subject(executionID), func(msg *nats.Msg) {
		select {
		case msgs <- msg:
		case <-done:
		}
	}, nats.DeliverAll())
	if err != nil {
		return fmt.Errorf("failed to subscribe to live events: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			var ev Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				f.logger.Error("Failed to unmarshal live event", zap.Error(err))
				continue
			}
			finished, err := dispatch(ev, sink)
			if err != nil {
				if finished {
					return err
				}
				f.logger.Warn("Skipping malformed live event", zap.String("event", ev.Event), zap.Error(err))
				continue
			}
			if finished {
				return nil
			}
		}
	}
}

// NATSPublisher publishes live events to JetStream
type NATSPublisher struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewNATSPublisher creates a new publisher
func NewNATSPublisher(js nats.JetStreamContext, logger *zap.Logger) (*NATSPublisher, error) {
	logger = logger.Named("live-publisher")
	if err := EnsureStream(js, logger); err != nil {
		return nil, err
	}
	return &NATSPublisher{logger: logger, js: js}, nil
}

// Publish sends one event for executionID
func (p *NATSPublisher) Publish(executionID string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := p.js.Publish(Subject(executionID), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Sink returns a Sink that republishes everything it receives for executionID
func (p *NATSPublisher) Sink(executionID string) Sink {
	return &publishSink{publisher: p, executionID: executionID}
}

type publishSink struct {
	publisher   *NATSPublisher
	executionID string
}

func (s *publishSink) Sample(sample model.MetricSample) {
	ev, err := MetricsEvent(sample)
	if err == nil {
		err = s.publisher.Publish(s.executionID, ev)
	}
	if err != nil {
		s.publisher.logger.Error("Failed to relay sample", zap.String("execution_id", s.executionID), zap.Error(err))
	}
}

func (s *publishSink) Status(status model.ExecutionStatus) {
	if err := s.publisher.Publish(s.executionID, StatusEvent(status)); err != nil {
		s.publisher.logger.Error("Failed to relay status", zap.String("execution_id", s.executionID), zap.Error(err))
	}
}

func (s *publishSink) Complete(status model.ExecutionStatus) {
	if err := s.publisher.Publish(s.executionID, CompleteEvent(status)); err != nil {
		s.publisher.logger.Error("Failed to relay completion", zap.String("execution_id", s.executionID), zap.Error(err))
	}
}

// Relay copies the live events of one execution from src onto the bus
func Relay(ctx context.Context, src Feed, dst *NATSPublisher, executionID string) error {
	dst.logger.Info("Relaying live events",
		zap.String("execution_id", executionID),
		zap.String("source", src.Name()))
	return src.Stream(ctx, executionID, dst.Sink(executionID))
}
