// ABOUTME: Server-Sent Events streams for channels and boards
// ABOUTME: History first, then live events; a resync ends the stream so the client reconnects

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/2389/cool-squad/internal/conversation"
)

type subscribeFunc func(ctx context.Context, clientID string) (*conversation.Subscription, error)

func (g *Gateway) handleChannelStream(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	g.stream(w, r, func(ctx context.Context, clientID string) (*conversation.Subscription, error) {
		return g.conv.SubscribeChannel(ctx, name, clientID)
	})
}

func (g *Gateway) handleBoardStream(w http.ResponseWriter, r *http.Request) {
	board := r.PathValue("board")
	g.stream(w, r, func(ctx context.Context, clientID string) (*conversation.Subscription, error) {
		return g.conv.SubscribeBoard(ctx, board, clientID)
	})
}

func (g *Gateway) stream(w http.ResponseWriter, r *http.Request, subscribe subscribeFunc) {
	// Check streaming support before subscribing (fail fast)
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.logger.Error("streaming not supported")
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.New().String()
	}

	ctx := r.Context()
	sub, err := subscribe(ctx, clientID)
	if err != nil {
		g.writeError(w, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	g.logger.Debug("stream opened", "resource", sub.Resource, "client_id", clientID)
	defer g.logger.Debug("stream closed", "resource", sub.Resource, "client_id", clientID)

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, conversation.ErrSubscriptionClosed) {
				g.logger.Warn("stream ended", "resource", sub.Resource, "error", err)
			}
			return
		}
		if err := g.writeSSEEvent(w, string(ev.Type), ev.Data); err != nil {
			g.logger.Debug("stream write failed", "resource", sub.Resource, "error", err)
			return
		}
		flusher.Flush()

		if ev.Type == conversation.EventResync {
			return
		}
	}
}

// writeSSEEvent writes a single SSE event to the response writer.
func (g *Gateway) writeSSEEvent(w http.ResponseWriter, event string, data any) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		g.logger.Error("failed to marshal SSE data", "error", err)
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, dataJSON)
	return err
}
