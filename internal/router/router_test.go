// ABOUTME: Tests for trigger dispatch, loop prevention and publish ordering
// ABOUTME: Uses a recording runner for dispatch rules and the real engine for end-to-end runs

package router

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/cool-squad/internal/bot"
	"github.com/2389/cool-squad/internal/conversation"
	"github.com/2389/cool-squad/internal/dedupe"
	"github.com/2389/cool-squad/internal/monologue"
	"github.com/2389/cool-squad/internal/reasoning"
	"github.com/2389/cool-squad/internal/tools"
)

var roster = []string{"curator", "normie", "ole_scrappy"}

type recordingRunner struct {
	mu       sync.Mutex
	triggers []bot.Trigger
	ctxErrs  []error
	gate     chan struct{}
}

func (r *recordingRunner) Run(ctx context.Context, trig bot.Trigger) (*bot.Result, error) {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.triggers = append(r.triggers, trig)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	return &bot.Result{}, nil
}

func (r *recordingRunner) bots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, t := range r.triggers {
		out = append(out, t.Bot)
	}
	return out
}

func newStore(t *testing.T) *conversation.Store {
	t.Helper()
	b := conversation.NewBroadcaster(conversation.BroadcasterConfig{PingInterval: -1, QueueSize: 256})
	t.Cleanup(b.Close)
	st := conversation.NewStore(conversation.StoreConfig{Broadcaster: b})
	st.SetRoster(roster)
	return st
}

func newRouter(t *testing.T, st *conversation.Store, runner Runner, opts ...func(*Config)) *Router {
	t.Helper()
	cfg := Config{Store: st, Engine: runner, Bots: roster}
	for _, o := range opts {
		o(&cfg)
	}
	r := New(cfg)
	t.Cleanup(r.Close)
	return r
}

func TestRouter_NoMentionStoresWithoutTriggering(t *testing.T) {
	st := newStore(t)
	runner := &recordingRunner{}
	r := newRouter(t, st, runner)

	msg, triggered, err := r.PostChannelMessage(t.Context(), "welcome",
		conversation.Message{Content: "hello", Author: "alice"})
	require.NoError(t, err)
	r.Wait()

	assert.Empty(t, triggered)
	assert.Empty(t, runner.bots())
	ch := st.GetChannel("welcome")
	require.Len(t, ch.Messages, 1)
	assert.Equal(t, msg.ID, ch.Messages[0].ID)
}

func TestRouter_InvalidMessageNotStored(t *testing.T) {
	st := newStore(t)
	r := newRouter(t, st, &recordingRunner{})

	_, _, err := r.PostChannelMessage(t.Context(), "welcome", conversation.Message{Content: "@curator", Author: ""})
	assert.ErrorIs(t, err, conversation.ErrInvalidArgument)
	assert.Empty(t, st.ListChannels())
}

func TestRouter_MentionRequiresActiveBot(t *testing.T) {
	st := newStore(t)
	runner := &recordingRunner{}
	r := newRouter(t, st, runner)

	_, triggered, err := r.PostChannelMessage(t.Context(), "dev", conversation.Message{Content: "@curator hi", Author: "alice"})
	require.NoError(t, err)
	assert.Empty(t, triggered)

	require.NoError(t, st.AddChannelBot(t.Context(), "dev", "curator"))
	_, triggered, err = r.PostChannelMessage(t.Context(), "dev", conversation.Message{Content: "@curator hi", Author: "alice"})
	require.NoError(t, err)
	r.Wait()
	assert.Equal(t, []string{"curator"}, triggered)
	assert.Equal(t, []string{"curator"}, runner.bots())
}

func TestRouter_MultipleMentionsRunIndependently(t *testing.T) {
	st := newStore(t)
	runner := &recordingRunner{}
	r := newRouter(t, st, runner)

	_, triggered, err := r.PostChannelMessage(t.Context(), st.EveryoneChannel(),
		conversation.Message{Content: "@normie and @curator, thoughts?", Author: "alice"})
	require.NoError(t, err)
	r.Wait()

	assert.Equal(t, []string{"normie", "curator"}, triggered)
	assert.ElementsMatch(t, []string{"normie", "curator"}, runner.bots())
}

func TestRouter_DefaultResponderOnlyInEveryoneChannel(t *testing.T) {
	st := newStore(t)
	runner := &recordingRunner{}
	r := newRouter(t, st, runner, func(c *Config) { c.DefaultResponder = "normie" })

	_, triggered, err := r.PostChannelMessage(t.Context(), st.EveryoneChannel(), conversation.Message{Content: "anyone here?", Author: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"normie"}, triggered)

	_, triggered, err = r.PostChannelMessage(t.Context(), st.EveryoneChannel(), conversation.Message{Content: "@normie you again", Author: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"normie"}, triggered)

	require.NoError(t, st.AddChannelBot(t.Context(), "dev", "normie"))
	_, triggered, err = r.PostChannelMessage(t.Context(), "dev", conversation.Message{Content: "anyone here?", Author: "alice"})
	require.NoError(t, err)
	assert.Empty(t, triggered)

	r.Wait()
	assert.Len(t, runner.bots(), 2)
}

func TestRouter_BotAuthorsDoNotTrigger(t *testing.T) {
	st := newStore(t)
	runner := &recordingRunner{}
	r := newRouter(t, st, runner, func(c *Config) { c.DefaultResponder = "normie" })

	_, triggered, err := r.PostChannelMessage(t.Context(), st.EveryoneChannel(), conversation.Message{Content: "@normie over to you", Author: "curator"})
	require.NoError(t, err)
	assert.Empty(t, triggered)

	_, err = r.PostAsBot(t.Context(), "curator", st.EveryoneChannel(), "@normie ping")
	require.NoError(t, err)
	r.Wait()
	assert.Empty(t, runner.bots())
	assert.Len(t, st.GetChannel(st.EveryoneChannel()).Messages, 2)
}

func TestRouter_SameTriggerRunsOnce(t *testing.T) {
	st := newStore(t)
	runner := &recordingRunner{}
	cache := dedupe.New(time.Minute, 100, 0)
	t.Cleanup(cache.Close)
	r := newRouter(t, st, runner, func(c *Config) { c.Dedupe = cache })

	msg := conversation.Message{ID: "m-1", Content: "@curator once", Author: "alice"}
	_, _, err := r.PostChannelMessage(t.Context(), st.EveryoneChannel(), msg)
	require.NoError(t, err)
	_, _, err = r.PostChannelMessage(t.Context(), st.EveryoneChannel(), msg)
	require.NoError(t, err)
	r.Wait()

	assert.Equal(t, []string{"curator"}, runner.bots())
	assert.True(t, cache.Seen("curator/m-1"))
}

func TestRouter_RunsOutliveRequestContext(t *testing.T) {
	st := newStore(t)
	runner := &recordingRunner{gate: make(chan struct{})}
	r := newRouter(t, st, runner)

	ctx, cancel := context.WithCancel(t.Context())
	_, _, err := r.PostChannelMessage(ctx, st.EveryoneChannel(), conversation.Message{Content: "@curator hi", Author: "alice"})
	require.NoError(t, err)
	cancel()
	close(runner.gate)
	r.Wait()

	require.Len(t, runner.ctxErrs, 1)
	assert.NoError(t, runner.ctxErrs[0])
}

func TestRouter_ThreadMentions(t *testing.T) {
	st := newStore(t)
	runner := &recordingRunner{}
	r := newRouter(t, st, runner)
	ctx := t.Context()

	_, err := st.CreateBoard(ctx, "general", "General", "")
	require.NoError(t, err)

	thread, triggered, err := r.CreateThread(ctx, "general", "intro",
		conversation.Message{Content: "@ole_scrappy what do you think", Author: "alice"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ole_scrappy"}, triggered)

	_, triggered, err = r.PostThreadMessage(ctx, "general", thread.ID, conversation.Message{Content: "and @normie?", Author: "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"normie"}, triggered)

	_, _, err = r.PostThreadMessage(ctx, "general", "missing", conversation.Message{Content: "@normie", Author: "bob"})
	assert.ErrorIs(t, err, conversation.ErrNotFound)

	r.Wait()
	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.triggers, 2)
	for _, trig := range runner.triggers {
		assert.Equal(t, "general", trig.Board)
		assert.Equal(t, thread.ID, trig.Thread)
		assert.Empty(t, trig.Channel)
	}
}

func nextEvent(t *testing.T, sub *conversation.Subscription) conversation.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	return ev
}

func TestRouter_HumanMessagePublishedBeforeBotReply(t *testing.T) {
	st := newStore(t)
	require.NoError(t, st.AddChannelBot(t.Context(), "general", "curator"))

	profiles := []bot.Profile{{Name: "curator", Personality: "organizer", Provider: reasoning.ProviderScripted, Model: "m", UseMonologue: true, MaxThoughts: 50}}
	botRoster := bot.NewRoster(profiles, nil)
	reg := tools.NewRegistry(nil)
	require.NoError(t, reg.RegisterPack(tools.ConversationPack(st)))

	scripted := reasoning.NewScripted()
	scripted.Enqueue("curator",
		&bot.Decision{ToolCalls: []bot.ToolCall{{ID: "c1", Name: "read_channel_messages", Arguments: json.RawMessage(`{"channel_name":"general"}`)}}},
		&bot.Decision{Text: "alice wants a summary; so far it is just this request."},
	)
	engine := bot.NewEngine(bot.EngineConfig{
		Store:     st,
		Tools:     reg,
		Roster:    botRoster,
		Reasoners: map[string]bot.Reasoner{reasoning.ProviderScripted: scripted},
	})
	r := newRouter(t, st, engine)

	sub, err := st.SubscribeChannel(t.Context(), "general", "watcher")
	require.NoError(t, err)
	defer sub.Close()
	history := nextEvent(t, sub)
	require.Equal(t, conversation.EventHistory, history.Type)

	_, triggered, err := r.PostChannelMessage(t.Context(), "general", conversation.Message{Content: "@curator summarize", Author: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{"curator"}, triggered)
	r.Wait()

	first := nextEvent(t, sub)
	second := nextEvent(t, sub)
	require.Equal(t, conversation.EventMessage, first.Type)
	require.Equal(t, conversation.EventMessage, second.Type)
	assert.Equal(t, "alice", first.Data.(conversation.ChannelMessage).Message.Author)
	assert.Equal(t, "curator", second.Data.(conversation.ChannelMessage).Message.Author)

	msgs := st.GetChannel("general").Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "curator", msgs[1].Author)

	b, err := botRoster.Get("curator")
	require.NoError(t, err)
	thoughts := b.Monologue.RecentThoughts(0, "")
	require.NotEmpty(t, thoughts)
	assert.Equal(t, monologue.CategoryInput, thoughts[0].Category)
	assert.Equal(t, monologue.CategoryFinalResponse, thoughts[len(thoughts)-1].Category)
}
