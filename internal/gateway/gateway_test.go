// ABOUTME: HTTP tests for the gateway REST surface
// ABOUTME: Runs the real conversation store, router and engine with scripted reasoning

package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/cool-squad/internal/bot"
	"github.com/2389/cool-squad/internal/budget"
	"github.com/2389/cool-squad/internal/config"
	"github.com/2389/cool-squad/internal/conversation"
	"github.com/2389/cool-squad/internal/monologue"
	"github.com/2389/cool-squad/internal/reasoning"
	"github.com/2389/cool-squad/internal/router"
	"github.com/2389/cool-squad/internal/store"
	"github.com/2389/cool-squad/internal/tools"
)

type testEnv struct {
	gw       *Gateway
	conv     *conversation.Store
	router   *router.Router
	roster   *bot.Roster
	scripted *reasoning.Scripted
	store    *store.MockStore
}

type envOption func(*config.Config, *Deps)

func withoutBudget() envOption {
	return func(_ *config.Config, d *Deps) { d.Budget = nil }
}

func withRateLimit(rps float64, burst int) envOption {
	return func(c *config.Config, _ *Deps) {
		c.RateLimit.RPS = rps
		c.RateLimit.Burst = burst
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Stream.PingInterval = -1

	profiles := []bot.Profile{
		{Name: "curator", Personality: "organizer", Provider: reasoning.ProviderScripted, Model: "m", UseMonologue: true, MaxThoughts: 50},
		{Name: "normie", Personality: "casual", Provider: reasoning.ProviderScripted, Model: "m", MaxThoughts: 50},
	}
	roster := bot.NewRoster(profiles, nil)

	broadcaster := conversation.NewBroadcaster(conversation.BroadcasterConfig{QueueSize: 64, PingInterval: -1})
	t.Cleanup(broadcaster.Close)
	mock := store.NewMockStore()
	conv := conversation.NewStore(conversation.StoreConfig{Broadcaster: broadcaster, Persister: mock})
	conv.SetRoster(roster.Names())

	reg := tools.NewRegistry(nil)
	require.NoError(t, reg.RegisterPack(tools.ConversationPack(conv)))

	tracker, err := budget.NewTracker(t.Context(), budget.Config{Usage: mock, Limits: mock})
	require.NoError(t, err)

	scripted := reasoning.NewScripted()
	engine := bot.NewEngine(bot.EngineConfig{
		Store:     conv,
		Tools:     reg,
		Roster:    roster,
		Reasoners: map[string]bot.Reasoner{reasoning.ProviderScripted: scripted},
		Budget:    tracker,
	})
	rt := router.New(router.Config{Store: conv, Engine: engine, Bots: roster.Names()})
	t.Cleanup(rt.Close)

	deps := Deps{Conversations: conv, Router: rt, Roster: roster, Budget: tracker, Store: mock}
	for _, o := range opts {
		o(cfg, &deps)
	}

	return &testEnv{
		gw:       NewWithDeps(cfg, deps, nil),
		conv:     conv,
		router:   rt,
		roster:   roster,
		scripted: scripted,
		store:    mock,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	e.gw.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func ptr[T any](v T) *T { return &v }

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, w)["error"]
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	w = env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ready (2 bots)", w.Body.String())
}

func TestReady_NoBots(t *testing.T) {
	env := newTestEnv(t, func(_ *config.Config, d *Deps) {
		d.Roster = bot.NewRoster(nil, nil)
	})

	w := env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "no bots loaded", w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env = newTestEnv(t, func(c *config.Config, _ *Deps) { c.Metrics.Enabled = true })
	w = env.do(t, http.MethodPost, "/api/channels/general/messages", PostMessageRequest{Content: "hello", Author: "alice"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `cool_squad_messages_appended_total{kind="channel"}`)
}

func TestPostChannelMessage(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/channels/general/messages", PostMessageRequest{Content: "hello", Author: "alice"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeBody[PostMessageResponse](t, w)
	assert.Equal(t, "hello", resp.Message.Content)
	assert.NotEmpty(t, resp.Message.ID)
	assert.Empty(t, resp.Triggered)

	w = env.do(t, http.MethodGet, "/api/channels", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"general"}, decodeBody[map[string][]string](t, w)["channels"])

	w = env.do(t, http.MethodGet, "/api/channels/general", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ch := decodeBody[conversation.Channel](t, w)
	require.Len(t, ch.Messages, 1)
	assert.Equal(t, "alice", ch.Messages[0].Author)

	snap, err := env.store.LoadSnapshot(t.Context())
	require.NoError(t, err)
	require.Len(t, snap.Channels, 1)
	assert.Len(t, snap.Channels[0].Messages, 1)
}

func TestPostChannelMessage_Invalid(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/channels/general/messages", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	env.gw.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid JSON body", errorMessage(t, w))

	w = env.do(t, http.MethodPost, "/api/channels/general/messages", PostMessageRequest{Content: "  ", Author: "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorMessage(t, w), "content is required")

	w = env.do(t, http.MethodPost, "/api/channels/general/messages", PostMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, errorMessage(t, w), "author is required")
}

func TestPostChannelMessage_TriggersMentionedBot(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.conv.AddChannelBot(t.Context(), "dev", "curator"))
	env.scripted.Enqueue("curator", &bot.Decision{Text: "on it"})

	w := env.do(t, http.MethodPost, "/api/channels/dev/messages", PostMessageRequest{Content: "@curator tidy up", Author: "alice"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, []string{"curator"}, decodeBody[PostMessageResponse](t, w).Triggered)
	env.router.Wait()

	msgs := env.conv.GetChannel("dev").Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "alice", msgs[0].Author)
	assert.Equal(t, "curator", msgs[1].Author)
	assert.Equal(t, "on it", msgs[1].Content)
}

func TestGetChannel_HTML(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.router.PostChannelMessage(t.Context(), "general",
		conversation.Message{Content: "**bold** <script>x</script>", Author: "alice"})
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/channels/general?format=html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Name     string `json:"name"`
		Messages []struct {
			Content     string `json:"content"`
			ContentHTML string `json:"content_html"`
		} `json:"messages"`
		Bots []string `json:"bots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "**bold** <script>x</script>", resp.Messages[0].Content)
	assert.Contains(t, resp.Messages[0].ContentHTML, "<strong>bold</strong>")
	assert.NotContains(t, resp.Messages[0].ContentHTML, "<script>")
	assert.NotNil(t, resp.Bots)
}

func TestChannelBots(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/channels/dev/bots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"channel":"dev","bots":[]}`, strings.TrimSpace(w.Body.String()))

	w = env.do(t, http.MethodPost, "/api/channels/dev/bots", ChannelBotRequest{Bot: "curator"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"curator"}, decodeBody[ChannelBotsResponse](t, w).Bots)

	w = env.do(t, http.MethodPost, "/api/channels/dev/bots", ChannelBotRequest{Bot: "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/channels/dev/bots/normie", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/channels/dev/bots/curator", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[ChannelBotsResponse](t, w).Bots)
}

func TestChannelBots_EveryoneIsImmutable(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/channels/everyone/bots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"curator", "normie"}, decodeBody[ChannelBotsResponse](t, w).Bots)

	w = env.do(t, http.MethodPost, "/api/channels/everyone/bots", ChannelBotRequest{Bot: "curator"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodDelete, "/api/channels/everyone/bots/curator", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	assert.Equal(t, []string{"curator", "normie"}, env.conv.ChannelBots("everyone"))
}

func TestBoardsAndThreads(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/boards", CreateBoardRequest{ID: "ideas", Name: "Ideas"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Ideas", decodeBody[conversation.Board](t, w).Name)

	w = env.do(t, http.MethodGet, "/api/boards", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decodeBody[map[string][]conversation.Board](t, w)["boards"], 1)

	w = env.do(t, http.MethodPost, "/api/boards/ideas/threads", CreateThreadRequest{
		Title:        "Roadmap",
		FirstMessage: PostMessageRequest{Content: "what next?", Author: "alice"},
		Tags:         []string{"planning"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[CreateThreadResponse](t, w)
	threadID := created.Thread.ID
	require.NotEmpty(t, threadID)
	assert.Equal(t, "Roadmap", created.Thread.Title)
	assert.Empty(t, created.Triggered)

	w = env.do(t, http.MethodPost, "/api/boards/ideas/threads/"+threadID+"/messages",
		PostMessageRequest{Content: "more tests", Author: "bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/boards/ideas/threads/"+threadID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	thread := decodeBody[conversation.Thread](t, w)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, "bob", thread.Messages[1].Author)

	w = env.do(t, http.MethodPost, "/api/boards/ideas/threads/"+threadID+"/pin", PinRequest{Pinned: ptr(true)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[conversation.Thread](t, w).Pinned)

	w = env.do(t, http.MethodPost, "/api/boards/ideas/threads/"+threadID+"/pin", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/boards/ideas/threads/"+threadID+"/tags", TagsRequest{Tags: []string{"q3"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []string{"planning", "q3"}, decodeBody[conversation.Thread](t, w).Tags)

	w = env.do(t, http.MethodGet, "/api/boards/ideas", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listing := decodeBody[BoardThreadsResponse](t, w)
	assert.Equal(t, "ideas", listing.Board.ID)
	require.Len(t, listing.Threads, 1)
	assert.True(t, listing.Threads[0].Pinned)
}

func TestThreads_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/boards/missing/threads", CreateThreadRequest{
		Title:        "x",
		FirstMessage: PostMessageRequest{Content: "y", Author: "alice"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/boards/missing/threads/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/api/boards/missing", nil)
	require.Equal(t, http.StatusOK, w.Code)
	listing := decodeBody[BoardThreadsResponse](t, w)
	assert.Equal(t, "missing", listing.Board.ID)
	assert.Empty(t, listing.Threads)
}

func TestGetThread_HTML(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.conv.CreateBoard(t.Context(), "ideas", "", "")
	require.NoError(t, err)
	thread, _, err := env.router.CreateThread(t.Context(), "ideas", "Links",
		conversation.Message{Content: "see `code`", Author: "alice"}, nil)
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/boards/ideas/threads/"+thread.ID+"?format=html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Title    string `json:"title"`
		Messages []struct {
			ContentHTML string `json:"content_html"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Links", resp.Title)
	require.Len(t, resp.Messages, 1)
	assert.Contains(t, resp.Messages[0].ContentHTML, "<code>code</code>")
}

func TestBots(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/bots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"curator", "normie"}, decodeBody[map[string][]string](t, w)["bots"])

	w = env.do(t, http.MethodGet, "/api/bots/curator", nil)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decodeBody[bot.Profile](t, w)
	assert.Equal(t, "organizer", profile.Personality)
	assert.True(t, profile.UseMonologue)

	w = env.do(t, http.MethodGet, "/api/bots/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMonologue(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/bots/curator/monologue/thoughts", ThoughtRequest{Content: "plan the week", Category: "reasoning"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, monologue.CategoryReasoning, decodeBody[monologue.Thought](t, w).Category)

	w = env.do(t, http.MethodPost, "/api/bots/curator/monologue/thoughts", ThoughtRequest{Content: "note"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/api/bots/curator/monologue?category=reasoning", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeBody[MonologueResponse](t, w)
	assert.Equal(t, "curator", resp.Bot)
	assert.True(t, resp.Enabled)
	require.Len(t, resp.Thoughts, 1)
	assert.Equal(t, "plan the week", resp.Thoughts[0].Content)

	w = env.do(t, http.MethodGet, "/api/bots/curator/monologue?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeBody[MonologueResponse](t, w)
	require.Len(t, resp.Thoughts, 1)
	assert.Equal(t, "note", resp.Thoughts[0].Content)

	w = env.do(t, http.MethodGet, "/api/bots/curator/monologue?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, http.MethodGet, "/api/bots/curator/monologue?category=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/api/bots/curator/monologue/thoughts", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	b, err := env.roster.Get("curator")
	require.NoError(t, err)
	assert.Empty(t, b.Monologue.RecentThoughts(0, ""))

	w = env.do(t, http.MethodDelete, "/api/bots/curator/monologue/tools", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestMonologue_DisabledRejectsThoughts(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/bots/normie/monologue/thoughts", ThoughtRequest{Content: "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "monologue is disabled for normie", errorMessage(t, w))

	w = env.do(t, http.MethodPatch, "/api/bots/normie/monologue", MonologueUpdateRequest{Enabled: ptr(true), MaxThoughts: ptr(10)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, monologue.Settings{Enabled: true, MaxThoughts: 10}, decodeBody[monologue.Settings](t, w))

	w = env.do(t, http.MethodPost, "/api/bots/normie/monologue/thoughts", ThoughtRequest{Content: "hi"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/bots/normie/monologue/thoughts", ThoughtRequest{Content: " "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPatch, "/api/bots/normie/monologue", MonologueUpdateRequest{MaxThoughts: ptr(-1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, withRateLimit(0.001, 1))

	w := env.do(t, http.MethodPost, "/api/channels/general/messages", PostMessageRequest{Content: "one", Author: "alice"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/api/channels/general/messages", PostMessageRequest{Content: "two", Author: "alice"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "rate limit exceeded", errorMessage(t, w))

	w = env.do(t, http.MethodPost, "/api/channels/general/messages", PostMessageRequest{Content: "three", Author: "bob"})
	assert.Equal(t, http.StatusCreated, w.Code)

	assert.Len(t, env.conv.GetChannel("general").Messages, 2)
}

func TestRateLimit_BlankAuthorIsInvalidNotThrottled(t *testing.T) {
	env := newTestEnv(t, withRateLimit(0.001, 1))
	_, err := env.conv.CreateBoard(t.Context(), "ideas", "Ideas", "")
	require.NoError(t, err)

	for _, author := range []string{"", "", "  "} {
		w := env.do(t, http.MethodPost, "/api/channels/general/messages", PostMessageRequest{Content: "hi", Author: author})
		assert.Equal(t, http.StatusBadRequest, w.Code, "author %q", author)
		assert.Equal(t, "invalid argument: author is required", errorMessage(t, w))
	}

	w := env.do(t, http.MethodPost, "/api/boards/ideas/threads", CreateThreadRequest{
		Title: "plan", FirstMessage: PostMessageRequest{Content: "hi"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/channels/general/messages", PostMessageRequest{Content: "hi", Author: "alice"})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, env.conv.GetChannel("general").Messages, 1)
}

func TestBudget(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/budget/openai", LimitRequest{Daily: 1000, Monthly: 20000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, store.BudgetLimit{Provider: "openai", Daily: 1000, Monthly: 20000}, decodeBody[store.BudgetLimit](t, w))

	w = env.do(t, http.MethodPut, "/api/budget/openai/gpt-4o", LimitRequest{Daily: -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/budget", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decodeBody[budget.Report](t, w)
	require.Len(t, report.Limits, 1)
	assert.Equal(t, int64(1000), report.Limits[0].Daily)

	w = env.do(t, http.MethodDelete, "/api/budget/anthropic", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodDelete, "/api/budget/openai", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	limits, err := env.store.ListLimits(t.Context())
	require.NoError(t, err)
	assert.Empty(t, limits)
}

func TestBudget_Disabled(t *testing.T) {
	env := newTestEnv(t, withoutBudget())

	w := env.do(t, http.MethodGet, "/api/budget", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuthorLimiter(t *testing.T) {
	var disabled *authorLimiter
	assert.Nil(t, newAuthorLimiter(0, 5))
	assert.True(t, disabled.Allow("anyone"))

	l := newAuthorLimiter(0.001, 2)
	assert.True(t, l.Allow("alice"))
	assert.True(t, l.Allow("alice"))
	assert.False(t, l.Allow("alice"))
	assert.True(t, l.Allow("bob"))
}
