package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"pinmap/internal/domain/pin"
)

// FeedConfig contains configuration for the live pin feed
type FeedConfig struct {
	// Path of the websocket endpoint on the server
	Path string

	// MinBackoff and MaxBackoff bound the reconnect delay
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// DefaultFeedConfig returns the default feed configuration
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		Path:       "/ws/pins",
		MinBackoff: time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

// Feed receives pin change events from the server's websocket
type Feed struct {
	url    string
	tokens TokenSource
	dialer *websocket.Dialer
	config FeedConfig
	logger *slog.Logger
}

// NewFeed creates a feed for the server the client talks to
func (c *Client) NewFeed(config FeedConfig) *Feed {
	if config.Path == "" {
		config.Path = DefaultFeedConfig().Path
	}
	if config.MinBackoff <= 0 {
		config.MinBackoff = DefaultFeedConfig().MinBackoff
	}
	if config.MaxBackoff < config.MinBackoff {
		config.MaxBackoff = config.MinBackoff
	}

	u := c.BaseURL()
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += config.Path

	return &Feed{
		url:    u.String(),
		tokens: c.tokens,
		dialer: websocket.DefaultDialer,
		config: config,
		logger: c.logger,
	}
}

// Run delivers events to handler until ctx is done, reconnecting with
// exponential backoff when the connection drops
func (f *Feed) Run(ctx context.Context, handler func(pin.Event)) error {
	backoff := f.config.MinBackoff
	for {
		connected, err := f.session(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = f.config.MinBackoff
		}

		f.logger.Warn("Pin feed disconnected", "error", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > f.config.MaxBackoff {
			backoff = f.config.MaxBackoff
		}
	}
}

// session runs one connection and reports whether it was established
func (f *Feed) session(ctx context.Context, handler func(pin.Event)) (bool, error) {
	header := http.Header{}
	if f.tokens != nil {
		if token := f.tokens.Token(); token != "" {
			header.Set(TokenHeader, token)
		}
	}

	conn, _, err := f.dialer.DialContext(ctx, f.url, header)
	if err != nil {
		return false, fmt.Errorf("error dialing pin feed: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	f.logger.Info("Connected to pin feed", "url", f.url)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("error reading pin feed: %w", err)
		}

		// the server batches queued messages into one frame, separated by newlines
		for _, line := range bytes.Split(message, []byte{'\n'}) {
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			var event pin.Event
			if err := json.Unmarshal(line, &event); err != nil || !event.Type.Known() {
				continue
			}
			handler(event)
		}
	}
}
