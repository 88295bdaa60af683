// ABOUTME: Contract between the bot engine and a reasoning provider
// ABOUTME: A provider turns a transcript plus tool schemas into text and/or tool calls

package bot

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/2389/cool-squad/internal/tools"
)

var (
	// ErrReasoningUnavailable indicates the reasoning provider could not
	// produce a decision. It aborts the current run.
	ErrReasoningUnavailable = errors.New("reasoning unavailable")

	// ErrUnknownBot indicates the named bot is not in the roster.
	ErrUnknownBot = errors.New("unknown bot")
)

// TurnRole is who produced a transcript turn.
type TurnRole string

const (
	RoleUser      TurnRole = "user"
	RoleAssistant TurnRole = "assistant"
	RoleTool      TurnRole = "tool"
)

// Turn is one entry of the transcript sent to the provider.
type Turn struct {
	Role    TurnRole
	Content string

	// ToolCalls is set on assistant turns that requested tools.
	ToolCalls []ToolCall

	// ToolCallID and ToolName are set on tool turns.
	ToolCallID string
	ToolName   string
}

// Request is one reasoning step.
type Request struct {
	Bot        Profile
	System     string
	Transcript []Turn

	// Tools is nil when the provider must answer in text only.
	Tools []tools.Definition
}

// ToolCall is a tool the provider selected.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage

	// Reasoning and Relevance feed the monologue's tool considerations.
	// Providers that do not report them leave them zero.
	Reasoning string
	Relevance float64
}

// Usage is the token cost of one step.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Decision is the provider's answer: text, tool calls, or both.
type Decision struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// Reasoner is a reasoning provider.
type Reasoner interface {
	Reason(ctx context.Context, req Request) (*Decision, error)
}

// ReasonerFunc adapts a function to Reasoner.
type ReasonerFunc func(ctx context.Context, req Request) (*Decision, error)

func (f ReasonerFunc) Reason(ctx context.Context, req Request) (*Decision, error) {
	return f(ctx, req)
}

// Budget gates provider calls on token spend.
type Budget interface {
	Check(ctx context.Context, provider, model string) error
	Record(ctx context.Context, bot, provider, model string, inputTokens, outputTokens int64) error
}
