// ABOUTME: Router stores inbound messages and dispatches bot runs for the triggers they carry
// ABOUTME: The store append publishes first, so a human message always streams before any reply to it

package router

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/2389/cool-squad/internal/bot"
	"github.com/2389/cool-squad/internal/conversation"
	"github.com/2389/cool-squad/internal/dedupe"
)

const (
	// DefaultDedupeTTL is how long a (bot, message) trigger is remembered.
	DefaultDedupeTTL = 10 * time.Minute
	defaultDedupeMax = 10000
)

// Conversations is the slice of the conversation store the router needs.
type Conversations interface {
	AppendChannelMessage(ctx context.Context, channel string, msg conversation.Message) (conversation.Message, error)
	AppendThreadMessage(ctx context.Context, boardID, threadID string, msg conversation.Message) (conversation.Message, error)
	CreateThread(ctx context.Context, boardID, title string, first conversation.Message, tags []string) (conversation.Thread, error)
	IsBotActive(channel, bot string) bool
	EveryoneChannel() string
}

// Runner runs one bot for one trigger. *bot.Engine implements it.
type Runner interface {
	Run(ctx context.Context, trig bot.Trigger) (*bot.Result, error)
}

// Config configures a Router.
type Config struct {
	Store  Conversations
	Engine Runner

	// Bots are the roster names recognized as @mentions and as bot authors.
	Bots []string

	// DefaultResponder answers every human message in the everyone channel
	// when set and active there.
	DefaultResponder string

	// Dedupe guards against running a bot twice for one message. Nil
	// creates a cache owned by the router.
	Dedupe *dedupe.Cache

	Logger *slog.Logger
}

// Router is the inbound path for human and bot messages.
type Router struct {
	store            Conversations
	engine           Runner
	bots             []string
	defaultResponder string
	dedupe           *dedupe.Cache
	ownsDedupe       bool
	logger           *slog.Logger

	wg sync.WaitGroup
}

// New creates a router.
func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		store:            cfg.Store,
		engine:           cfg.Engine,
		bots:             slices.Clone(cfg.Bots),
		defaultResponder: cfg.DefaultResponder,
		dedupe:           cfg.Dedupe,
		logger:           logger.With("component", "router"),
	}
	if r.dedupe == nil {
		r.dedupe = dedupe.New(DefaultDedupeTTL, defaultDedupeMax, time.Minute)
		r.ownsDedupe = true
	}
	return r
}

func (r *Router) isBot(author string) bool {
	return slices.Contains(r.bots, author)
}

// channelTriggers returns the bots a channel message triggers: mentioned
// bots active in the channel, then the default responder in the everyone
// channel.
func (r *Router) channelTriggers(channel string, msg conversation.Message) []string {
	var triggered []string
	for _, name := range bot.Mentions(msg.Content, r.bots) {
		if r.store.IsBotActive(channel, name) {
			triggered = append(triggered, name)
		}
	}
	if r.defaultResponder != "" &&
		channel == r.store.EveryoneChannel() &&
		!slices.Contains(triggered, r.defaultResponder) &&
		r.store.IsBotActive(channel, r.defaultResponder) {
		triggered = append(triggered, r.defaultResponder)
	}
	return triggered
}

// PostChannelMessage stores a message and starts a run for every bot it
// triggers. It returns the stored message and the triggered bots. Messages
// authored by bots never trigger other bots.
func (r *Router) PostChannelMessage(ctx context.Context, channel string, msg conversation.Message) (conversation.Message, []string, error) {
	stored, err := r.store.AppendChannelMessage(ctx, channel, msg)
	if err != nil {
		return conversation.Message{}, nil, err
	}
	if r.isBot(stored.Author) {
		return stored, nil, nil
	}

	triggered := r.channelTriggers(channel, stored)
	for _, name := range triggered {
		r.dispatch(ctx, bot.Trigger{Bot: name, Channel: channel, Message: stored})
	}
	return stored, triggered, nil
}

// PostThreadMessage stores a thread reply and starts a run for every bot
// mentioned in it. Threads have no membership, so any roster bot can be
// mentioned.
func (r *Router) PostThreadMessage(ctx context.Context, boardID, threadID string, msg conversation.Message) (conversation.Message, []string, error) {
	stored, err := r.store.AppendThreadMessage(ctx, boardID, threadID, msg)
	if err != nil {
		return conversation.Message{}, nil, err
	}
	return stored, r.threadTriggers(ctx, boardID, threadID, stored), nil
}

// CreateThread creates a thread; mentions in its first message trigger bots
// like any reply.
func (r *Router) CreateThread(ctx context.Context, boardID, title string, first conversation.Message, tags []string) (conversation.Thread, []string, error) {
	thread, err := r.store.CreateThread(ctx, boardID, title, first, tags)
	if err != nil {
		return conversation.Thread{}, nil, err
	}
	if len(thread.Messages) == 0 {
		return thread, nil, nil
	}
	return thread, r.threadTriggers(ctx, boardID, thread.ID, thread.Messages[0]), nil
}

func (r *Router) threadTriggers(ctx context.Context, boardID, threadID string, msg conversation.Message) []string {
	if r.isBot(msg.Author) {
		return nil
	}
	triggered := bot.Mentions(msg.Content, r.bots)
	for _, name := range triggered {
		r.dispatch(ctx, bot.Trigger{Bot: name, Board: boardID, Thread: threadID, Message: msg})
	}
	return triggered
}

// PostAsBot appends a message authored by a bot without evaluating
// triggers.
func (r *Router) PostAsBot(ctx context.Context, botName, channel, content string) (conversation.Message, error) {
	return r.store.AppendChannelMessage(ctx, channel, conversation.Message{Author: botName, Content: content})
}

// dispatch starts one engine run unless the same bot already ran for the
// same message. Runs are detached from the caller's cancellation.
func (r *Router) dispatch(ctx context.Context, trig bot.Trigger) {
	key := trig.Bot + "/" + trig.Message.ID
	if !r.dedupe.Claim(key) {
		r.logger.Debug("duplicate trigger ignored", "key", key)
		return
	}

	runCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res, err := r.engine.Run(runCtx, trig)
		if err != nil {
			r.logger.Warn("bot run failed", "bot", trig.Bot, "message", trig.Message.ID, "error", err)
			return
		}
		r.logger.Debug("bot run finished",
			"bot", trig.Bot,
			"message", trig.Message.ID,
			"replied", res.Reply != nil,
			"tool_steps", res.ToolSteps)
	}()
}

// Wait blocks until every dispatched run has finished.
func (r *Router) Wait() {
	r.wg.Wait()
}

// Close waits for in-flight runs and releases the router's dedupe cache.
func (r *Router) Close() {
	r.Wait()
	if r.ownsDedupe {
		r.dedupe.Close()
	}
}
