package misskey

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Handlers for events on the "main" streaming channel. Nil handlers are skipped.
//
// A handler returning an error terminates the subscription; callers that need per-event isolation should log and return nil.
type StreamCallbacks struct {
	Mention func(ctx context.Context, note *Note) error
	Reply   func(ctx context.Context, note *Note) error
}

type streamMessage struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

type channelEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

type connectBody struct {
	Channel string `json:"channel"`
	ID      string `json:"id"`
}

func (sc *StreamCallbacks) dispatch(ctx context.Context, evt *channelEvent) error {
	switch {
	case evt.Type == "mention" && sc.Mention != nil:
		var note Note
		if err := json.Unmarshal(evt.Body, &note); err != nil {
			return fmt.Errorf("parsing mention event: %w", err)
		}
		return sc.Mention(ctx, &note)
	case evt.Type == "reply" && sc.Reply != nil:
		var note Note
		if err := json.Unmarshal(evt.Body, &note); err != nil {
			return fmt.Errorf("parsing reply event: %w", err)
		}
		return sc.Reply(ctx, &note)
	default:
		return nil
	}
}

// Computes the websocket URL of the streaming API for this client's host.
func (c *Client) StreamURL() (string, error) {
	u, err := url.Parse(c.Host)
	if err != nil {
		return "", fmt.Errorf("invalid misskey host URI: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported misskey host scheme: %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/streaming"
	q := url.Values{}
	q.Set("i", c.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type instrumentedReader struct {
	r io.Reader
}

func (sr *instrumentedReader) Read(p []byte) (int, error) {
	n, err := sr.r.Read(p)
	streamBytesCounter.Add(float64(n))
	return n, err
}

// Connects to the streaming API, joins the "main" channel, and dispatches events to callbacks until the connection fails or the context is cancelled.
//
// Always returns a non-nil error. Reconnection is the caller's responsibility.
func (c *Client) Subscribe(ctx context.Context, logger *slog.Logger, sc *StreamCallbacks) error {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	streamURL, err := c.StreamURL()
	if err != nil {
		return err
	}

	dialer := websocket.DefaultDialer
	con, _, err := dialer.DialContext(ctx, streamURL, http.Header{
		"User-Agent": []string{c.userAgent()},
	})
	if err != nil {
		return fmt.Errorf("subscribing to streaming API failed (dialing): %w", err)
	}
	defer con.Close()

	connID := fmt.Sprintf("main-%d", time.Now().UnixNano())
	if err := con.WriteJSON(struct {
		Type string      `json:"type"`
		Body connectBody `json:"body"`
	}{
		Type: "connect",
		Body: connectBody{Channel: "main", ID: connID},
	}); err != nil {
		return fmt.Errorf("connecting to main channel: %w", err)
	}
	logger.Info("subscribed to streaming API", "host", c.Host, "channel", "main")

	go func() {
		t := time.NewTicker(time.Second * 30)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				if err := con.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second*10)); err != nil {
					logger.Warn("failed to ping", "err", err)
				}
			case <-ctx.Done():
				con.Close()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		mt, rawReader, err := con.NextReader()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if mt != websocket.TextMessage {
			logger.Debug("ignoring non-text stream message", "type", mt)
			continue
		}

		var msg streamMessage
		if err := json.NewDecoder(&instrumentedReader{r: rawReader}).Decode(&msg); err != nil {
			logger.Warn("failed to parse stream message", "err", err)
			continue
		}
		if msg.Type != "channel" {
			continue
		}

		var evt channelEvent
		if err := json.Unmarshal(msg.Body, &evt); err != nil {
			logger.Warn("failed to parse channel event", "err", err)
			continue
		}
		if evt.ID != connID {
			continue
		}
		streamEventsCounter.WithLabelValues(evt.Type).Inc()

		if err := sc.dispatch(ctx, &evt); err != nil {
			return err
		}
	}
}
