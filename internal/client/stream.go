// ABOUTME: SSE stream reading and the reconnecting channel tail
// ABOUTME: Every reconnect gets a fresh history; message ids already shown are skipped

package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/cool-squad/internal/conversation"
	"github.com/2389/cool-squad/internal/dedupe"
)

// Event is one parsed Server-Sent Event.
type Event struct {
	Type conversation.EventType
	Data json.RawMessage
}

// errStopStream ends a stream from inside an event callback without an error.
var errStopStream = errors.New("stop stream")

// Stream opens path and calls onEvent for every event until the server
// closes the stream, ctx is done or onEvent returns an error. A clean end
// of stream returns nil.
func (c *Client) Stream(ctx context.Context, path string, onEvent func(Event) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("opening stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}

	err = readEvents(ctx, resp.Body, onEvent)
	if errors.Is(err, errStopStream) {
		return nil
	}
	return err
}

// readEvents parses SSE events from body.
func readEvents(ctx context.Context, body io.Reader, onEvent func(Event) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var eventType string
	var dataLines []string

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Text()

		// Empty line signals end of event
		if line == "" {
			if eventType != "" && len(dataLines) > 0 {
				ev := Event{
					Type: conversation.EventType(eventType),
					Data: json.RawMessage(strings.Join(dataLines, "\n")),
				}
				if err := onEvent(ev); err != nil {
					return err
				}
			}
			eventType = ""
			dataLines = nil
			continue
		}

		if v, ok := strings.CutPrefix(line, "event:"); ok {
			eventType = strings.TrimSpace(v)
			continue
		}
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			dataLines = append(dataLines, strings.TrimPrefix(v, " "))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("reading SSE stream: %w", err)
	}
	return nil
}

// TailOptions configures Tail.
type TailOptions struct {
	// ClientID identifies this subscriber to the server. Empty generates one.
	ClientID string

	// MinBackoff and MaxBackoff bound the delay between reconnects.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// OnReconnect is called before each reconnect with the reason the
	// previous stream ended. A resync ends the stream with a nil reason.
	OnReconnect func(attempt int, reason error)
}

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 15 * time.Second
	seenTTL           = 24 * time.Hour
	seenMax           = 10000
)

// Tail follows a channel, calling onMessage once per message id in order.
// The stream is reopened after a resync or a dropped connection; the fresh
// history it starts with is filtered against the messages already shown.
// Tail returns when ctx is done or the server rejects the subscription.
func (c *Client) Tail(ctx context.Context, channel string, opts TailOptions, onMessage func(conversation.Message)) error {
	if opts.ClientID == "" {
		opts.ClientID = uuid.New().String()
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = max(defaultMaxBackoff, opts.MinBackoff)
	}

	seen := dedupe.New(seenTTL, seenMax, 0)
	defer seen.Close()

	show := func(msg conversation.Message) {
		if msg.ID != "" && !seen.Claim(msg.ID) {
			return
		}
		onMessage(msg)
	}

	path := "/sse/channels/" + escape(channel) + "?client_id=" + opts.ClientID
	backoff := opts.MinBackoff

	for attempt := 1; ; attempt++ {
		connected := false
		err := c.Stream(ctx, path, func(ev Event) error {
			switch ev.Type {
			case conversation.EventHistory:
				connected = true
				var h conversation.ChannelHistory
				if err := json.Unmarshal(ev.Data, &h); err != nil {
					return fmt.Errorf("decoding history: %w", err)
				}
				for _, m := range h.Messages {
					show(m)
				}
			case conversation.EventMessage:
				var m conversation.ChannelMessage
				if err := json.Unmarshal(ev.Data, &m); err != nil {
					return fmt.Errorf("decoding message: %w", err)
				}
				show(m.Message)
			case conversation.EventResync:
				c.logger.Debug("stream resync", "channel", channel)
				return errStopStream
			}
			return nil
		})

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError && apiErr.Status != http.StatusTooManyRequests {
			return err
		}

		if connected {
			backoff = opts.MinBackoff
		}
		if err != nil {
			c.logger.Warn("stream interrupted", "channel", channel, "error", err, "retry_in", backoff)
		}
		if opts.OnReconnect != nil {
			opts.OnReconnect(attempt, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, opts.MaxBackoff)
	}
}
