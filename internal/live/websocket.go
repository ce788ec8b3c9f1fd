package live

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const handshakeTimeout = 10 * time.Second

// WebSocketFeed reads the backend's live metrics endpoint
type WebSocketFeed struct {
	logger  *zap.Logger
	baseURL *url.URL
	dialer  *websocket.Dialer
}

// NewWebSocketFeed creates a feed against the backend at baseURL (http or https)
func NewWebSocketFeed(baseURL string, logger *zap.Logger) (*WebSocketFeed, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	return &WebSocketFeed{
		logger:  logger.Named("live-websocket"),
		baseURL: u,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}, nil
}

// Name implements Feed
func (f *WebSocketFeed) Name() string {
	return "websocket"
}

func (f *WebSocketFeed) url(executionID string) string {
	u := *f.baseURL
	u.Path = f.baseURL.Path + "/api/v1/metrics/live/" + url.PathEscape(executionID)
	return u.String()
}

// Stream implements Feed
func (f *WebSocketFeed) Stream(ctx context.Context, executionID string, sink Sink) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url(executionID), nil)
	if err != nil {
		return fmt.Errorf("failed to connect live feed: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	f.logger.Info("Live feed connected", zap.String("execution_id", executionID))

	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read live event: %w", err)
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
			f.logger.Info("Live feed finished", zap.String("execution_id", executionID))
			return nil
		}
	}
}
