// ABOUTME: Tests for the SSE channel and board streams
// ABOUTME: Reads events off a live httptest server: history first, then live messages and pings

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/cool-squad/internal/config"
	"github.com/2389/cool-squad/internal/conversation"
	"github.com/2389/cool-squad/internal/router"
)

type sseEvent struct {
	Event string
	Data  string
}

// openStream connects to path and returns a channel of parsed events.
func openStream(t *testing.T, srv *httptest.Server, path string) (*http.Response, <-chan sseEvent) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	events := make(chan sseEvent, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		var cur sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				cur.Event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				cur.Data = strings.TrimPrefix(line, "data: ")
			case line == "":
				events <- cur
				cur = sseEvent{}
			}
		}
	}()
	return resp, events
}

func nextSSE(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return sseEvent{}
	}
}

func startServer(t *testing.T, env *testEnv) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(env.gw.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestChannelStream_HistoryThenLive(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.router.PostChannelMessage(t.Context(), "general",
		conversation.Message{Content: "before", Author: "alice"})
	require.NoError(t, err)
	srv := startServer(t, env)

	resp, events := openStream(t, srv, "/sse/channels/general?client_id=c1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	ev := nextSSE(t, events)
	require.Equal(t, "history", ev.Event)
	var history conversation.ChannelHistory
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &history))
	assert.Equal(t, "general", history.Channel)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "before", history.Messages[0].Content)

	_, _, err = env.router.PostChannelMessage(t.Context(), "general",
		conversation.Message{Content: "after", Author: "bob"})
	require.NoError(t, err)

	ev = nextSSE(t, events)
	require.Equal(t, "message", ev.Event)
	var msg conversation.ChannelMessage
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &msg))
	assert.Equal(t, "after", msg.Message.Content)
	assert.Equal(t, "bob", msg.Message.Author)
}

func TestChannelStream_Ping(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, d *Deps) {
		b := conversation.NewBroadcaster(conversation.BroadcasterConfig{QueueSize: 16, PingInterval: 20 * time.Millisecond})
		t.Cleanup(b.Close)
		conv := conversation.NewStore(conversation.StoreConfig{Broadcaster: b})
		d.Conversations = conv
		d.Router = router.New(router.Config{Store: conv, Bots: d.Roster.Names()})
		t.Cleanup(d.Router.Close)
	})
	srv := startServer(t, env)

	_, events := openStream(t, srv, "/sse/channels/quiet")
	require.Equal(t, "history", nextSSE(t, events).Event)
	assert.Equal(t, "ping", nextSSE(t, events).Event)
}

func TestBoardStream(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.conv.CreateBoard(t.Context(), "ideas", "Ideas", "")
	require.NoError(t, err)
	srv := startServer(t, env)

	_, events := openStream(t, srv, "/sse/boards/ideas?client_id=b1")
	ev := nextSSE(t, events)
	require.Equal(t, "history", ev.Event)
	var history conversation.BoardHistory
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &history))
	assert.Equal(t, "ideas", history.Board.ID)
	assert.Empty(t, history.Threads)

	thread, _, err := env.router.CreateThread(t.Context(), "ideas", "Roadmap",
		conversation.Message{Content: "first", Author: "alice"}, nil)
	require.NoError(t, err)

	ev = nextSSE(t, events)
	require.Equal(t, "board_update", ev.Event)
	var update conversation.BoardUpdate
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &update))
	require.NotNil(t, update.Thread)
	assert.Equal(t, thread.ID, update.Thread.ID)
}

func TestBoardStream_UnknownBoardStartsEmpty(t *testing.T) {
	env := newTestEnv(t)
	srv := startServer(t, env)

	_, events := openStream(t, srv, "/sse/boards/missing")
	ev := nextSSE(t, events)
	require.Equal(t, "history", ev.Event)
	var history conversation.BoardHistory
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &history))
	assert.Equal(t, "missing", history.Board.ID)
	assert.Empty(t, history.Threads)
}

func TestStream_BlankResource(t *testing.T) {
	env := newTestEnv(t)
	srv := startServer(t, env)

	resp, err := srv.Client().Get(srv.URL + "/sse/boards/%20")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
