// ABOUTME: Persistence interfaces and data types for cool-squad
// ABOUTME: Conversation state, token usage and budget limits live behind these interfaces

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/cool-squad/internal/conversation"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ConversationStore persists channels, boards and threads. It is the durable
// collaborator of conversation.Store and can rebuild its state on startup.
type ConversationStore interface {
	conversation.Persister

	// LoadSnapshot reads every channel, board and thread, messages in
	// append order.
	LoadSnapshot(ctx context.Context) (conversation.Snapshot, error)
}

// TokenUsage is one reasoning call's token consumption.
type TokenUsage struct {
	ID           string
	Bot          string
	Provider     string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CreatedAt    time.Time
}

// UsageFilter narrows usage aggregation. Nil fields are ignored.
type UsageFilter struct {
	Provider *string
	Model    *string
	Bot      *string
	Since    *time.Time
	Until    *time.Time
}

// UsageStats is aggregated token usage.
type UsageStats struct {
	TotalInput   int64 `json:"total_input"`
	TotalOutput  int64 `json:"total_output"`
	TotalTokens  int64 `json:"total_tokens"`
	RequestCount int64 `json:"request_count"`
}

// UsageStore records and aggregates token usage.
type UsageStore interface {
	SaveUsage(ctx context.Context, usage *TokenUsage) error
	GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error)
}

// BudgetLimit caps tokens for a provider, or for one model of a provider
// when Model is set. Zero means no limit.
type BudgetLimit struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
	Daily    int64  `json:"daily"`
	Monthly  int64  `json:"monthly"`
}

// LimitStore persists budget limits edited at runtime.
type LimitStore interface {
	SaveLimit(ctx context.Context, limit BudgetLimit) error
	DeleteLimit(ctx context.Context, provider, model string) error
	ListLimits(ctx context.Context) ([]BudgetLimit, error)
}

// Store is everything the server persists.
type Store interface {
	ConversationStore
	UsageStore
	LimitStore
	Close() error
}
