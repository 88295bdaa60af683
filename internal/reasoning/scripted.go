// ABOUTME: Offline reasoning provider that replays queued decisions
// ABOUTME: Used for local runs without API keys and for deterministic tests

package reasoning

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/2389/cool-squad/internal/bot"
)

// Scripted returns queued decisions per bot in order. When a bot's queue is
// empty it answers with Fallback.
type Scripted struct {
	mu     sync.Mutex
	queues map[string][]*bot.Decision
	calls  int

	// Fallback builds the decision when nothing is queued. Nil echoes the
	// latest user turn.
	Fallback func(req bot.Request) *bot.Decision
}

// NewScripted creates an empty scripted provider.
func NewScripted() *Scripted {
	return &Scripted{queues: make(map[string][]*bot.Decision)}
}

// Enqueue appends decisions for a bot.
func (s *Scripted) Enqueue(botName string, decisions ...*bot.Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[botName] = append(s.queues[botName], decisions...)
}

// Calls returns how many times Reason was called.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Reason implements bot.Reasoner.
func (s *Scripted) Reason(ctx context.Context, req bot.Request) (*bot.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.calls++
	queue := s.queues[req.Bot.Name]
	if len(queue) > 0 {
		d := queue[0]
		s.queues[req.Bot.Name] = queue[1:]
		s.mu.Unlock()
		return d, nil
	}
	s.mu.Unlock()

	if s.Fallback != nil {
		return s.Fallback(req), nil
	}
	return echo(req), nil
}

func echo(req bot.Request) *bot.Decision {
	for i := len(req.Transcript) - 1; i >= 0; i-- {
		turn := req.Transcript[i]
		if turn.Role == bot.RoleUser {
			return &bot.Decision{Text: fmt.Sprintf("%s heard: %s", req.Bot.Name, strings.TrimSpace(turn.Content))}
		}
	}
	return &bot.Decision{Text: fmt.Sprintf("%s has nothing to add", req.Bot.Name)}
}
