// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/2389/cool-squad/internal/conversation"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	channelMsgs map[string][]conversation.Message // keyed by channel name
	channelBots map[string][]string               // keyed by channel name
	boards      map[string]conversation.Board     // keyed by board ID
	threads     map[string]conversation.Thread    // keyed by thread ID, metadata only
	threadMsgs  map[string][]conversation.Message // keyed by thread ID
	usage       []*TokenUsage
	limits      map[[2]string]BudgetLimit // keyed by provider, model

	// FailWith, when set, is returned by every write.
	FailWith error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		channelMsgs: make(map[string][]conversation.Message),
		channelBots: make(map[string][]string),
		boards:      make(map[string]conversation.Board),
		threads:     make(map[string]conversation.Thread),
		threadMsgs:  make(map[string][]conversation.Message),
		limits:      make(map[[2]string]BudgetLimit),
	}
}

// SaveChannelMessage appends a channel message.
func (m *MockStore) SaveChannelMessage(ctx context.Context, channel string, msg conversation.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.channelMsgs[channel] = append(m.channelMsgs[channel], msg)
	return nil
}

// SaveChannelBots replaces a channel's membership.
func (m *MockStore) SaveChannelBots(ctx context.Context, channel string, bots []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.channelBots[channel] = slices.Clone(bots)
	return nil
}

// SaveBoard stores a board.
func (m *MockStore) SaveBoard(ctx context.Context, board conversation.Board) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.boards[board.ID] = board
	return nil
}

// SaveThread stores thread metadata.
func (m *MockStore) SaveThread(ctx context.Context, thread conversation.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	thread.Messages = nil
	thread.Tags = slices.Clone(thread.Tags)
	m.threads[thread.ID] = thread
	return nil
}

// SaveThreadMessage appends a thread message.
func (m *MockStore) SaveThreadMessage(ctx context.Context, boardID, threadID string, msg conversation.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.threadMsgs[threadID] = append(m.threadMsgs[threadID], msg)
	return nil
}

// LoadSnapshot returns everything saved so far.
func (m *MockStore) LoadSnapshot(ctx context.Context) (conversation.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var snap conversation.Snapshot
	names := make(map[string]struct{})
	for name := range m.channelMsgs {
		names[name] = struct{}{}
	}
	for name := range m.channelBots {
		names[name] = struct{}{}
	}
	for name := range names {
		snap.Channels = append(snap.Channels, conversation.Channel{
			Name:     name,
			Messages: slices.Clone(m.channelMsgs[name]),
			Bots:     slices.Clone(m.channelBots[name]),
		})
	}
	sort.Slice(snap.Channels, func(i, j int) bool { return snap.Channels[i].Name < snap.Channels[j].Name })

	for _, b := range m.boards {
		bs := conversation.BoardSnapshot{Board: b}
		for _, t := range m.threads {
			if t.BoardID != b.ID {
				continue
			}
			t.Messages = slices.Clone(m.threadMsgs[t.ID])
			bs.Threads = append(bs.Threads, t)
		}
		snap.Boards = append(snap.Boards, bs)
	}
	sort.Slice(snap.Boards, func(i, j int) bool { return snap.Boards[i].Board.ID < snap.Boards[j].Board.ID })
	return snap, nil
}

// SaveUsage records token usage.
func (m *MockStore) SaveUsage(ctx context.Context, usage *TokenUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	u := *usage
	m.usage = append(m.usage, &u)
	return nil
}

// GetUsageStats aggregates usage matching the filter.
func (m *MockStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats UsageStats
	for _, u := range m.usage {
		if filter.Provider != nil && u.Provider != *filter.Provider {
			continue
		}
		if filter.Model != nil && u.Model != *filter.Model {
			continue
		}
		if filter.Bot != nil && u.Bot != *filter.Bot {
			continue
		}
		if !usageWindow(u.CreatedAt, filter.Since, filter.Until) {
			continue
		}
		stats.TotalInput += u.InputTokens
		stats.TotalOutput += u.OutputTokens
		stats.RequestCount++
	}
	stats.TotalTokens = stats.TotalInput + stats.TotalOutput
	return &stats, nil
}

// SaveLimit stores a limit.
func (m *MockStore) SaveLimit(ctx context.Context, limit BudgetLimit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	m.limits[[2]string{limit.Provider, limit.Model}] = limit
	return nil
}

// DeleteLimit removes a limit.
func (m *MockStore) DeleteLimit(ctx context.Context, provider, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return m.FailWith
	}
	key := [2]string{provider, model}
	if _, ok := m.limits[key]; !ok {
		return ErrNotFound
	}
	delete(m.limits, key)
	return nil
}

// ListLimits returns limits ordered by provider then model.
func (m *MockStore) ListLimits(ctx context.Context) ([]BudgetLimit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]BudgetLimit, 0, len(m.limits))
	for _, l := range m.limits {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out, nil
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

// UsageRecords returns a copy of recorded usage.
func (m *MockStore) UsageRecords() []TokenUsage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]TokenUsage, 0, len(m.usage))
	for _, u := range m.usage {
		out = append(out, *u)
	}
	return out
}

// ErrMockFailure is a convenience error for FailWith.
var ErrMockFailure = errors.New("mock store failure")

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)
