// ABOUTME: Bot response engine: a bounded reasoning and tool-calling loop per trigger
// ABOUTME: Records one monologue thought per state transition and posts the final reply

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/cool-squad/internal/conversation"
	"github.com/2389/cool-squad/internal/metrics"
	"github.com/2389/cool-squad/internal/monologue"
	"github.com/2389/cool-squad/internal/tools"
)

const (
	DefaultMaxToolSteps     = 5
	DefaultContextMessages  = 10
	DefaultMonologueTail    = 10
	DefaultReasoningTimeout = 60 * time.Second

	// resultThoughtLimit caps how much of a tool result is copied into a thought.
	resultThoughtLimit = 200

	// exhaustedReply is posted when the forced final answer after the tool
	// budget comes back empty, so a tool-using run always ends with a reply.
	exhaustedReply = "I ran out of tool steps before I could put an answer together."
)

// State is a step of a bot run.
type State string

const (
	StateIdle                 State = "idle"
	StateTriggered            State = "triggered"
	StateReasoning            State = "reasoning"
	StateToolSelected         State = "tool_selected"
	StateToolExecuting        State = "tool_executing"
	StateToolResultIntegrated State = "tool_result_integrated"
	StateResponding           State = "responding"
)

// Conversations is the slice of the conversation store the engine needs.
type Conversations interface {
	RecentChannelMessages(name string, n int) []conversation.Message
	RecentThreadMessages(boardID, threadID string, n int) ([]conversation.Message, error)
	AppendChannelMessage(ctx context.Context, channel string, msg conversation.Message) (conversation.Message, error)
	AppendThreadMessage(ctx context.Context, boardID, threadID string, msg conversation.Message) (conversation.Message, error)
}

// Trigger is the message that started a run and where it was posted.
// Exactly one of Channel or Board+Thread is set.
type Trigger struct {
	Bot     string
	Channel string
	Board   string
	Thread  string
	Message conversation.Message
}

func (t Trigger) where() string {
	if t.Channel != "" {
		return "#" + t.Channel
	}
	return fmt.Sprintf("thread %s on board %s", t.Thread, t.Board)
}

// Result describes a finished run.
type Result struct {
	// Reply is the posted message, nil when the bot stayed silent.
	Reply     *conversation.Message
	ToolSteps int
}

// EngineConfig configures an Engine. Zero values take defaults.
type EngineConfig struct {
	Store     Conversations
	Tools     *tools.Registry
	Roster    *Roster
	Reasoners map[string]Reasoner
	Budget    Budget

	MaxToolSteps     int
	ContextMessages  int
	MonologueTail    int
	ReasoningTimeout time.Duration
	Logger           *slog.Logger
}

// Engine runs bots. It holds no per-run state and is safe for concurrent use.
type Engine struct {
	store     Conversations
	tools     *tools.Registry
	roster    *Roster
	reasoners map[string]Reasoner
	budget    Budget

	maxToolSteps     int
	contextMessages  int
	monologueTail    int
	reasoningTimeout time.Duration
	logger           *slog.Logger
}

// NewEngine creates an engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:            cfg.Store,
		tools:            cfg.Tools,
		roster:           cfg.Roster,
		reasoners:        cfg.Reasoners,
		budget:           cfg.Budget,
		maxToolSteps:     cfg.MaxToolSteps,
		contextMessages:  cfg.ContextMessages,
		monologueTail:    cfg.MonologueTail,
		reasoningTimeout: cfg.ReasoningTimeout,
		logger:           logger.With("component", "engine"),
	}
	if e.maxToolSteps <= 0 {
		e.maxToolSteps = DefaultMaxToolSteps
	}
	if e.contextMessages <= 0 {
		e.contextMessages = DefaultContextMessages
	}
	if e.monologueTail <= 0 {
		e.monologueTail = DefaultMonologueTail
	}
	if e.reasoningTimeout <= 0 {
		e.reasoningTimeout = DefaultReasoningTimeout
	}
	if e.tools == nil {
		e.tools = tools.NewRegistry(logger)
	}
	return e
}

// Roster returns the bots the engine runs.
func (e *Engine) Roster() *Roster {
	return e.roster
}

// run carries the state of one trigger.
type run struct {
	engine *Engine
	bot    *Bot
	trig   Trigger
	state  State
	logger *slog.Logger
}

// enter moves to state and records exactly one thought for the transition.
func (r *run) enter(state State, category monologue.Category, thought string) {
	r.state = state
	r.think(category, thought)
}

func (r *run) think(category monologue.Category, thought string) {
	if r.bot.Monologue.Enabled() {
		r.bot.Monologue.AddThought(thought, category)
	}
	r.logger.Debug("bot transition", "state", r.state, "category", category)
}

// Run handles one trigger for one bot. It returns ErrReasoningUnavailable
// when the provider fails; in that case nothing is posted. Tool failures are
// fed back to the provider and never abort the run.
func (e *Engine) Run(ctx context.Context, trig Trigger) (*Result, error) {
	b, err := e.roster.Get(trig.Bot)
	if err != nil {
		return nil, err
	}

	r := &run{
		engine: e,
		bot:    b,
		trig:   trig,
		state:  StateIdle,
		logger: e.logger.With("bot", b.Name, "where", trig.where()),
	}
	b.Monologue.Touch()
	r.enter(StateTriggered, monologue.CategoryInput,
		fmt.Sprintf("%s said in %s: %s", trig.Message.Author, trig.where(), trig.Message.Content))

	res, err := r.loop(ctx)
	switch {
	case err != nil:
		metrics.BotRuns.WithLabelValues(b.Name, "aborted").Inc()
	case res.Reply == nil:
		metrics.BotRuns.WithLabelValues(b.Name, "silent").Inc()
	default:
		metrics.BotRuns.WithLabelValues(b.Name, "responded").Inc()
	}
	r.state = StateIdle
	return res, err
}

func (r *run) loop(ctx context.Context) (*Result, error) {
	e := r.engine
	res := &Result{}
	transcript := e.transcript(r.bot, r.trig)
	system := e.systemPrompt(r.bot, fmt.Sprintf("you are replying in %s to %s.", r.trig.where(), r.trig.Message.Author))

	var text string
	for {
		toolsAllowed := res.ToolSteps < e.maxToolSteps
		req := Request{Bot: r.bot.Profile, System: system, Transcript: transcript}
		if toolsAllowed {
			req.Tools = e.tools.Definitions()
			r.enter(StateReasoning, monologue.CategoryReasoning,
				fmt.Sprintf("thinking about how to respond (tool steps used %d/%d)", res.ToolSteps, e.maxToolSteps))
		} else {
			r.enter(StateReasoning, monologue.CategoryReasoning,
				"tool budget spent, composing a final answer")
		}

		decision, err := e.reason(ctx, r.bot, req)
		if err != nil {
			r.think(monologue.CategoryError, fmt.Sprintf("reasoning failed: %v", err))
			r.logger.Warn("bot run aborted", "error", err)
			return res, err
		}

		if !toolsAllowed {
			text = decision.Text
			if strings.TrimSpace(text) == "" {
				r.think(monologue.CategoryError, "final answer came back empty after the tool budget was spent")
				r.logger.Warn("empty final answer after tool budget", "tool_steps", res.ToolSteps)
				text = exhaustedReply
			}
			break
		}
		if len(decision.ToolCalls) == 0 {
			text = decision.Text
			break
		}

		transcript = append(transcript, r.executeStep(ctx, decision, res)...)
	}

	r.enter(StateResponding, monologue.CategoryResponse, fmt.Sprintf("responding: %s", text))
	if strings.TrimSpace(text) == "" {
		r.logger.Info("bot chose not to reply")
		return res, nil
	}

	reply, err := e.post(ctx, r.bot.Name, r.trig, text)
	if err != nil {
		// The write failing is not a reasoning failure; record it and stay silent.
		r.think(monologue.CategoryError, fmt.Sprintf("posting reply failed: %v", err))
		r.logger.Error("failed to post bot reply", "error", err)
		return res, nil
	}
	r.think(monologue.CategoryFinalResponse, text)
	res.Reply = &reply

	r.logger.Info("bot replied",
		"message_id", reply.ID,
		"tool_steps", res.ToolSteps)
	return res, nil
}

// executeStep runs the tool calls of one decision in parallel and returns the
// transcript turns to append, in the order the provider listed the calls.
// Calls beyond the remaining step budget are answered without being run.
func (r *run) executeStep(ctx context.Context, decision *Decision, res *Result) []Turn {
	e := r.engine
	calls := decision.ToolCalls
	remaining := e.maxToolSteps - res.ToolSteps
	runnable := min(len(calls), remaining)

	for _, call := range calls {
		reasoning := call.Reasoning
		if reasoning == "" {
			reasoning = decision.Text
		}
		relevance := call.Relevance
		if relevance == 0 {
			relevance = 0.5
		}
		r.bot.Monologue.ConsiderTool(call.Name, reasoning, relevance)
		r.enter(StateToolSelected, monologue.CategoryToolSelection,
			fmt.Sprintf("selected %s with %s", call.Name, string(call.Arguments)))
	}

	for _, call := range calls[:runnable] {
		r.enter(StateToolExecuting, monologue.CategoryToolUse, fmt.Sprintf("using %s", call.Name))
	}

	inv := tools.Invocation{
		Bot:     r.bot.Name,
		Channel: r.trig.Channel,
		Board:   r.trig.Board,
		Thread:  r.trig.Thread,
	}
	outputs := make([]string, len(calls))
	errs := make([]error, len(calls))

	var g errgroup.Group
	for i, call := range calls[:runnable] {
		g.Go(func() error {
			outputs[i], errs[i] = e.tools.Execute(ctx, call.Name, inv, call.Arguments)
			return nil
		})
	}
	_ = g.Wait()
	res.ToolSteps += runnable

	turns := make([]Turn, 0, len(calls)+1)
	turns = append(turns, Turn{Role: RoleAssistant, Content: decision.Text, ToolCalls: calls})
	for i, call := range calls {
		var content string
		switch {
		case i >= runnable:
			content = "error: tool step budget exhausted, call not executed"
			r.state = StateToolResultIntegrated
			r.think(monologue.CategoryError, fmt.Sprintf("skipped %s: tool step budget exhausted", call.Name))
		case errs[i] != nil:
			content = "error: " + errs[i].Error()
			r.state = StateToolResultIntegrated
			r.think(monologue.CategoryError, fmt.Sprintf("%s failed: %v", call.Name, errs[i]))
		default:
			content = outputs[i]
			r.enter(StateToolResultIntegrated, monologue.CategoryToolResult,
				fmt.Sprintf("%s returned: %s", call.Name, truncate(outputs[i], resultThoughtLimit)))
		}
		turns = append(turns, Turn{
			Role:       RoleTool,
			Content:    content,
			ToolCallID: call.ID,
			ToolName:   call.Name,
		})
	}
	return turns
}

// reason makes one provider call under the budget and the reasoning timeout.
func (e *Engine) reason(ctx context.Context, b *Bot, req Request) (*Decision, error) {
	reasoner, ok := e.reasoners[b.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: no provider %q configured", ErrReasoningUnavailable, b.Provider)
	}
	if e.budget != nil {
		if err := e.budget.Check(ctx, b.Provider, b.Model); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReasoningUnavailable, err)
		}
	}

	rctx, cancel := context.WithTimeout(ctx, e.reasoningTimeout)
	defer cancel()

	decision, err := reasoner.Reason(rctx, req)
	if err != nil {
		if errors.Is(err, ErrReasoningUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrReasoningUnavailable, err)
	}
	if decision == nil {
		return nil, fmt.Errorf("%w: provider returned no decision", ErrReasoningUnavailable)
	}

	if e.budget != nil && (decision.Usage.InputTokens > 0 || decision.Usage.OutputTokens > 0) {
		if err := e.budget.Record(ctx, b.Name, b.Provider, b.Model, decision.Usage.InputTokens, decision.Usage.OutputTokens); err != nil {
			e.logger.Warn("failed to record token usage", "bot", b.Name, "error", err)
		}
	}
	return decision, nil
}

func (e *Engine) post(ctx context.Context, botName string, trig Trigger, text string) (conversation.Message, error) {
	msg := conversation.Message{Author: botName, Content: text}
	if trig.Channel != "" {
		return e.store.AppendChannelMessage(ctx, trig.Channel, msg)
	}
	return e.store.AppendThreadMessage(ctx, trig.Board, trig.Thread, msg)
}

// transcript renders the recent messages where the trigger happened.
func (e *Engine) transcript(b *Bot, trig Trigger) []Turn {
	var msgs []conversation.Message
	if trig.Channel != "" {
		msgs = e.store.RecentChannelMessages(trig.Channel, e.contextMessages)
	} else if recent, err := e.store.RecentThreadMessages(trig.Board, trig.Thread, e.contextMessages); err == nil {
		msgs = recent
	}
	if len(msgs) == 0 {
		msgs = []conversation.Message{trig.Message}
	}

	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		role := RoleUser
		if m.Author == b.Name {
			role = RoleAssistant
		}
		turns = append(turns, Turn{Role: role, Content: fmt.Sprintf("%s: %s", m.Author, m.Content)})
	}
	return turns
}

func (e *Engine) systemPrompt(b *Bot, situation string) string {
	var sb strings.Builder
	sb.WriteString(b.Personality)
	fmt.Fprintf(&sb, "\n\nyour name is %s. %s", b.Name, situation)
	sb.WriteString(" reply with plain text. an empty reply means you stay silent.")
	if b.Monologue.Enabled() {
		if tail := b.Monologue.FormatForPrompt(e.monologueTail); tail != "" {
			sb.WriteString("\n\nyour recent private thoughts:\n")
			sb.WriteString(tail)
		}
	}
	return sb.String()
}

// Reflect asks a bot to think on its own, without tools, and records the
// result as an autonomous thought.
func (e *Engine) Reflect(ctx context.Context, name, prompt string) (string, error) {
	b, err := e.roster.Get(name)
	if err != nil {
		return "", err
	}

	req := Request{
		Bot:        b.Profile,
		System:     e.systemPrompt(b, "you are alone with your thoughts and nobody is waiting for a reply."),
		Transcript: []Turn{{Role: RoleUser, Content: prompt}},
	}
	decision, err := e.reason(ctx, b, req)
	if err != nil {
		if b.Monologue.Enabled() {
			b.Monologue.AddThought(fmt.Sprintf("reflection failed: %v", err), monologue.CategoryError)
		}
		return "", err
	}

	text := strings.TrimSpace(decision.Text)
	if text != "" && b.Monologue.Enabled() {
		b.Monologue.AddThought(text, monologue.CategoryAutonomous)
	}
	return text, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
