// ABOUTME: Tests for the tool registry and the conversation pack
// ABOUTME: Uses a real in-memory conversation store

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/cool-squad/internal/conversation"
)

func echoTool(name string) *Tool {
	return &Tool{
		Definition: Definition{Name: name, InputSchema: json.RawMessage(`{"type":"object"}`)},
		Handler: func(_ context.Context, inv Invocation, input json.RawMessage) (string, error) {
			return inv.Bot + ":" + string(input), nil
		},
	}
}

func TestRegistry_ExecuteAndLookup(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.RegisterPack(&Pack{ID: "test", Tools: []*Tool{echoTool("b"), echoTool("a")}}))

	assert.Equal(t, []string{"a", "b"}, r.Names())
	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Name)

	out, err := r.Execute(t.Context(), "a", Invocation{Bot: "curator"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "curator:{}", out)
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Execute(t.Context(), "delete_everything", Invocation{}, nil)
	assert.ErrorIs(t, err, ErrToolNotFound)

	_, err = r.Get("delete_everything")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistry_HandlerErrorIsWrapped(t *testing.T) {
	r := NewRegistry(nil)
	boom := errors.New("boom")
	require.NoError(t, r.RegisterPack(&Pack{ID: "test", Tools: []*Tool{{
		Definition: Definition{Name: "fail"},
		Handler: func(context.Context, Invocation, json.RawMessage) (string, error) {
			return "", boom
		},
	}}}))

	_, err := r.Execute(t.Context(), "fail", Invocation{}, nil)
	assert.ErrorIs(t, err, ErrToolExecution)
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_Collision(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.RegisterPack(&Pack{ID: "one", Tools: []*Tool{echoTool("a")}}))

	err := r.RegisterPack(&Pack{ID: "two", Tools: []*Tool{echoTool("b"), echoTool("a")}})
	assert.ErrorIs(t, err, ErrToolCollision)
	assert.Equal(t, []string{"a"}, r.Names(), "a failed pack registers nothing")

	err = r.RegisterPack(&Pack{ID: "three", Tools: []*Tool{echoTool("c"), echoTool("c")}})
	assert.ErrorIs(t, err, ErrToolCollision)
}

func newConversationRegistry(t *testing.T) (*Registry, *conversation.Store) {
	t.Helper()
	b := conversation.NewBroadcaster(conversation.BroadcasterConfig{PingInterval: -1})
	t.Cleanup(b.Close)
	s := conversation.NewStore(conversation.StoreConfig{Broadcaster: b})
	s.SetRoster([]string{"curator", "normie"})

	r := NewRegistry(nil)
	require.NoError(t, r.RegisterPack(ConversationPack(s)))
	return r, s
}

func TestConversationPack_ChannelTools(t *testing.T) {
	r, s := newConversationRegistry(t)
	ctx := t.Context()
	inv := Invocation{Bot: "curator", Channel: "general"}

	for _, c := range []string{"one", "two", "three"} {
		_, err := s.AppendChannelMessage(ctx, "general", conversation.Message{Author: "alice", Content: c})
		require.NoError(t, err)
	}

	out, err := r.Execute(ctx, "read_channel_messages", inv, json.RawMessage(`{"channel_name":"general","limit":2}`))
	require.NoError(t, err)
	assert.Equal(t, "Recent messages in #general:\n[alice]: two\n[alice]: three\n", out)

	_, err = r.Execute(ctx, "post_channel_message", inv, json.RawMessage(`{"channel_name":"general","content":"hi"}`))
	assert.ErrorIs(t, err, ErrNotChannelMember)
	assert.ErrorIs(t, err, ErrToolExecution)

	require.NoError(t, s.AddChannelBot(ctx, "general", "curator"))
	out, err = r.Execute(ctx, "post_channel_message", inv, json.RawMessage(`{"channel_name":"general","content":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "message posted to #general", out)

	msgs := s.GetChannel("general").Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "curator", msgs[3].Author)

	out, err = r.Execute(ctx, "list_channels", inv, nil)
	require.NoError(t, err)
	assert.Equal(t, "Channels: #general", out)
}

func TestConversationPack_EveryoneChannelAllowsRosterBots(t *testing.T) {
	r, s := newConversationRegistry(t)
	ctx := t.Context()

	_, err := r.Execute(ctx, "post_channel_message", Invocation{Bot: "normie"},
		json.RawMessage(`{"channel_name":"everyone","content":"hey all"}`))
	require.NoError(t, err)
	assert.Len(t, s.GetChannel("everyone").Messages, 1)
}

func TestConversationPack_BoardTools(t *testing.T) {
	r, s := newConversationRegistry(t)
	ctx := t.Context()
	inv := Invocation{Bot: "curator"}

	out, err := r.Execute(ctx, "list_boards", inv, nil)
	require.NoError(t, err)
	assert.Equal(t, "No message boards found.", out)

	_, err = s.CreateBoard(ctx, "general", "General", "anything goes")
	require.NoError(t, err)

	out, err = r.Execute(ctx, "list_boards", inv, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "- general: anything goes")

	out, err = r.Execute(ctx, "create_thread", inv,
		json.RawMessage(`{"board_name":"general","title":"intro","content":"hello","tags":["meta"]}`))
	require.NoError(t, err)
	assert.Contains(t, out, "Created new thread 'intro'")

	out, err = r.Execute(ctx, "read_board_threads", inv, json.RawMessage(`{"board_name":"general"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "1. intro [tags: meta] (1 messages)")

	_, err = r.Execute(ctx, "post_thread_reply", inv,
		json.RawMessage(`{"board_name":"general","thread_index":1,"content":"welcome"}`))
	require.NoError(t, err)

	out, err = r.Execute(ctx, "read_thread", inv, json.RawMessage(`{"board_name":"general","thread_index":1}`))
	require.NoError(t, err)
	assert.Contains(t, out, "Thread: intro\n")
	assert.Contains(t, out, "[curator]: hello\n[curator]: welcome\n")
}

func TestConversationPack_Errors(t *testing.T) {
	r, s := newConversationRegistry(t)
	ctx := t.Context()
	inv := Invocation{Bot: "curator"}

	_, err := r.Execute(ctx, "read_board_threads", inv, json.RawMessage(`{"board_name":"nope"}`))
	assert.ErrorIs(t, err, conversation.ErrNotFound)

	_, err = s.CreateBoard(ctx, "general", "", "")
	require.NoError(t, err)

	_, err = r.Execute(ctx, "read_thread", inv, json.RawMessage(`{"board_name":"general","thread_index":3}`))
	assert.ErrorIs(t, err, conversation.ErrNotFound)

	_, err = r.Execute(ctx, "read_thread", inv, json.RawMessage(`{"board_name":"general"}`))
	assert.ErrorIs(t, err, conversation.ErrInvalidArgument)

	_, err = r.Execute(ctx, "create_thread", inv, json.RawMessage(`not json`))
	assert.ErrorIs(t, err, ErrToolExecution)
}
