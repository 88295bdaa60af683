// ABOUTME: HTTP API handlers for channels, boards, bots, monologues and budgets
// ABOUTME: Writes go through the router so mentions trigger bots; errors map to JSON status codes

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/cool-squad/internal/bot"
	"github.com/2389/cool-squad/internal/budget"
	"github.com/2389/cool-squad/internal/conversation"
	"github.com/2389/cool-squad/internal/monologue"
	"github.com/2389/cool-squad/internal/store"
)

// PostMessageRequest is the JSON body for posting to a channel or thread.
type PostMessageRequest struct {
	Content string `json:"content"`
	Author  string `json:"author"`
}

// PostMessageResponse is returned for a stored message with the bots it triggered.
type PostMessageResponse struct {
	Message   conversation.Message `json:"message"`
	Triggered []string             `json:"triggered"`
}

// ChannelBotRequest is the JSON body for POST /api/channels/{name}/bots.
type ChannelBotRequest struct {
	Bot string `json:"bot"`
}

// ChannelBotsResponse lists the bots active in a channel.
type ChannelBotsResponse struct {
	Channel string   `json:"channel"`
	Bots    []string `json:"bots"`
}

// CreateBoardRequest is the JSON body for POST /api/boards.
type CreateBoardRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// BoardThreadsResponse is a board with its sorted thread summaries.
type BoardThreadsResponse struct {
	Board   conversation.Board           `json:"board"`
	Threads []conversation.ThreadSummary `json:"threads"`
}

// CreateThreadRequest is the JSON body for POST /api/boards/{board}/threads.
type CreateThreadRequest struct {
	Title        string             `json:"title"`
	FirstMessage PostMessageRequest `json:"first_message"`
	Tags         []string           `json:"tags"`
}

// CreateThreadResponse is the created thread with the bots it triggered.
type CreateThreadResponse struct {
	Thread    conversation.Thread `json:"thread"`
	Triggered []string            `json:"triggered"`
}

// PinRequest is the JSON body for pinning or unpinning a thread.
type PinRequest struct {
	Pinned *bool `json:"pinned"`
}

// TagsRequest is the JSON body for tagging a thread.
type TagsRequest struct {
	Tags []string `json:"tags"`
}

// MonologueResponse is the JSON response for GET /api/bots/{bot}/monologue.
type MonologueResponse struct {
	Bot string `json:"bot"`
	monologue.Settings
	Thoughts           []monologue.Thought           `json:"thoughts"`
	ToolConsiderations []monologue.ToolConsideration `json:"tool_considerations"`
}

// MonologueUpdateRequest is the JSON body for PATCH /api/bots/{bot}/monologue.
// Nil fields are left unchanged.
type MonologueUpdateRequest struct {
	Enabled     *bool `json:"enabled"`
	Debug       *bool `json:"debug"`
	MaxThoughts *int  `json:"max_thoughts"`
}

// ThoughtRequest is the JSON body for injecting a thought.
type ThoughtRequest struct {
	Content  string `json:"content"`
	Category string `json:"category"`
}

// LimitRequest is the JSON body for PUT /api/budget/{provider}[/{model}].
type LimitRequest struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

// writeError maps domain errors to status codes. Unexpected errors are
// logged and reported without detail.
func (g *Gateway) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrMembershipImmutable):
		g.sendJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, conversation.ErrInvalidArgument),
		errors.Is(err, budget.ErrInvalidLimit):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversation.ErrNotFound),
		errors.Is(err, bot.ErrUnknownBot),
		errors.Is(err, budget.ErrLimitNotFound):
		g.sendJSONError(w, http.StatusNotFound, err.Error())
	default:
		g.logger.Error("request failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// allowAuthor enforces the per-author write rate. It writes the 429 itself.
// A blank author has no bucket; the store rejects it with a 400.
func (g *Gateway) allowAuthor(w http.ResponseWriter, author string) bool {
	if strings.TrimSpace(author) == "" || g.limiter.Allow(author) {
		return true
	}
	w.Header().Set("Retry-After", "1")
	g.sendJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
	return false
}

func wantsHTML(r *http.Request) bool {
	return r.URL.Query().Get("format") == "html"
}

// Channels

func (g *Gateway) handleListChannels(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string][]string{"channels": nonNil(g.conv.ListChannels())})
}

func (g *Gateway) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	ch := g.conv.GetChannel(r.PathValue("name"))
	ch.Bots = nonNil(ch.Bots)
	if !wantsHTML(r) {
		g.writeJSON(w, http.StatusOK, ch)
		return
	}
	g.writeJSON(w, http.StatusOK, struct {
		Name     string        `json:"name"`
		Messages []messageView `json:"messages"`
		Bots     []string      `json:"bots"`
	}{ch.Name, g.renderMessages(ch.Messages), ch.Bots})
}

func (g *Gateway) handlePostChannelMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !g.allowAuthor(w, req.Author) {
		return
	}

	msg, triggered, err := g.router.PostChannelMessage(r.Context(), r.PathValue("name"),
		conversation.Message{Content: req.Content, Author: req.Author})
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, PostMessageResponse{Message: msg, Triggered: nonNil(triggered)})
}

func (g *Gateway) handleChannelBots(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	g.writeJSON(w, http.StatusOK, ChannelBotsResponse{Channel: name, Bots: nonNil(g.conv.ChannelBots(name))})
}

func (g *Gateway) handleAddChannelBot(w http.ResponseWriter, r *http.Request) {
	var req ChannelBotRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := r.PathValue("name")
	if err := g.conv.AddChannelBot(r.Context(), name, req.Bot); err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, ChannelBotsResponse{Channel: name, Bots: nonNil(g.conv.ChannelBots(name))})
}

func (g *Gateway) handleRemoveChannelBot(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := g.conv.RemoveChannelBot(r.Context(), name, r.PathValue("bot")); err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, ChannelBotsResponse{Channel: name, Bots: nonNil(g.conv.ChannelBots(name))})
}

// Boards and threads

func (g *Gateway) handleListBoards(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string][]conversation.Board{"boards": g.conv.ListBoards()})
}

func (g *Gateway) handleCreateBoard(w http.ResponseWriter, r *http.Request) {
	var req CreateBoardRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	board, err := g.conv.CreateBoard(r.Context(), req.ID, req.Name, req.Description)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, board)
}

func (g *Gateway) handleBoardThreads(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("board")
	board, ok := g.conv.GetBoard(id)
	if !ok {
		board = conversation.Board{ID: id}
	}
	g.writeJSON(w, http.StatusOK, BoardThreadsResponse{Board: board, Threads: g.conv.GetBoardThreads(id)})
}

func (g *Gateway) handleCreateThread(w http.ResponseWriter, r *http.Request) {
	var req CreateThreadRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !g.allowAuthor(w, req.FirstMessage.Author) {
		return
	}

	first := conversation.Message{Content: req.FirstMessage.Content, Author: req.FirstMessage.Author}
	thread, triggered, err := g.router.CreateThread(r.Context(), r.PathValue("board"), req.Title, first, req.Tags)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, CreateThreadResponse{Thread: thread, Triggered: nonNil(triggered)})
}

func (g *Gateway) handleGetThread(w http.ResponseWriter, r *http.Request) {
	thread, err := g.conv.GetThread(r.PathValue("board"), r.PathValue("thread"))
	if err != nil {
		g.writeError(w, err)
		return
	}
	if !wantsHTML(r) {
		g.writeJSON(w, http.StatusOK, thread)
		return
	}
	g.writeJSON(w, http.StatusOK, struct {
		conversation.ThreadSummary
		Messages []messageView `json:"messages"`
	}{thread.Summary(), g.renderMessages(thread.Messages)})
}

func (g *Gateway) handlePostThreadMessage(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !g.allowAuthor(w, req.Author) {
		return
	}

	msg, triggered, err := g.router.PostThreadMessage(r.Context(), r.PathValue("board"), r.PathValue("thread"),
		conversation.Message{Content: req.Content, Author: req.Author})
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, PostMessageResponse{Message: msg, Triggered: nonNil(triggered)})
}

func (g *Gateway) handlePinThread(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Pinned == nil {
		g.sendJSONError(w, http.StatusBadRequest, "pinned is required")
		return
	}
	thread, err := g.conv.SetThreadPinned(r.Context(), r.PathValue("board"), r.PathValue("thread"), *req.Pinned)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, thread)
}

func (g *Gateway) handleTagThread(w http.ResponseWriter, r *http.Request) {
	var req TagsRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	thread, err := g.conv.AddThreadTags(r.Context(), r.PathValue("board"), r.PathValue("thread"), req.Tags)
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, thread)
}

// Bots and monologues

func (g *Gateway) handleListBots(w http.ResponseWriter, _ *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string][]string{"bots": g.roster.Names()})
}

func (g *Gateway) lookupBot(w http.ResponseWriter, r *http.Request) (*bot.Bot, bool) {
	b, err := g.roster.Get(r.PathValue("bot"))
	if err != nil {
		g.writeError(w, err)
		return nil, false
	}
	return b, true
}

func (g *Gateway) handleGetBot(w http.ResponseWriter, r *http.Request) {
	b, ok := g.lookupBot(w, r)
	if !ok {
		return
	}
	g.writeJSON(w, http.StatusOK, b.Info())
}

func (g *Gateway) handleGetMonologue(w http.ResponseWriter, r *http.Request) {
	b, ok := g.lookupBot(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	var category monologue.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		c, err := monologue.ParseCategory(raw)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		category = c
	}

	g.writeJSON(w, http.StatusOK, MonologueResponse{
		Bot:                b.Name,
		Settings:           b.Monologue.Settings(),
		Thoughts:           b.Monologue.RecentThoughts(limit, category),
		ToolConsiderations: b.Monologue.ToolConsiderations(),
	})
}

func (g *Gateway) handleUpdateMonologue(w http.ResponseWriter, r *http.Request) {
	b, ok := g.lookupBot(w, r)
	if !ok {
		return
	}
	var req MonologueUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.MaxThoughts != nil {
		if err := b.Monologue.SetMaxThoughts(*req.MaxThoughts); err != nil {
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Enabled != nil {
		b.Monologue.SetEnabled(*req.Enabled)
	}
	if req.Debug != nil {
		b.Monologue.SetDebug(*req.Debug)
	}
	g.logger.Info("monologue settings updated", "bot", b.Name)
	g.writeJSON(w, http.StatusOK, b.Monologue.Settings())
}

func (g *Gateway) handleAddThought(w http.ResponseWriter, r *http.Request) {
	b, ok := g.lookupBot(w, r)
	if !ok {
		return
	}
	if !b.Monologue.Enabled() {
		g.sendJSONError(w, http.StatusBadRequest, "monologue is disabled for "+b.Name)
		return
	}
	var req ThoughtRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		g.sendJSONError(w, http.StatusBadRequest, "content is required")
		return
	}
	category, err := monologue.ParseCategory(req.Category)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	g.writeJSON(w, http.StatusCreated, b.Monologue.AddThought(req.Content, category))
}

func (g *Gateway) handleClearThoughts(w http.ResponseWriter, r *http.Request) {
	b, ok := g.lookupBot(w, r)
	if !ok {
		return
	}
	b.Monologue.ClearThoughts()
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleClearToolConsiderations(w http.ResponseWriter, r *http.Request) {
	b, ok := g.lookupBot(w, r)
	if !ok {
		return
	}
	b.Monologue.ClearToolConsiderations()
	w.WriteHeader(http.StatusNoContent)
}

// Budget

func (g *Gateway) requireBudget(w http.ResponseWriter) bool {
	if g.budget == nil {
		g.sendJSONError(w, http.StatusServiceUnavailable, "budget tracking is not enabled")
		return false
	}
	return true
}

func (g *Gateway) handleBudgetReport(w http.ResponseWriter, r *http.Request) {
	if !g.requireBudget(w) {
		return
	}
	report, err := g.budget.Report(r.Context())
	if err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, report)
}

func (g *Gateway) handleSetLimit(w http.ResponseWriter, r *http.Request) {
	if !g.requireBudget(w) {
		return
	}
	var req LimitRequest
	if err := decodeJSON(r, &req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := store.BudgetLimit{
		Provider: r.PathValue("provider"),
		Model:    r.PathValue("model"),
		Daily:    req.Daily,
		Monthly:  req.Monthly,
	}
	if err := g.budget.SetLimit(r.Context(), limit); err != nil {
		g.writeError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, limit)
}

func (g *Gateway) handleDeleteLimit(w http.ResponseWriter, r *http.Request) {
	if !g.requireBudget(w) {
		return
	}
	if err := g.budget.DeleteLimit(r.Context(), r.PathValue("provider"), r.PathValue("model")); err != nil {
		g.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
