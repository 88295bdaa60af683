// ABOUTME: Closed catalogue of tools a bot may invoke, looked up by name
// ABOUTME: Tools are registered in packs at startup; unknown names fail with ErrToolNotFound

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/2389/cool-squad/internal/metrics"
)

var (
	// ErrToolNotFound indicates no tool is registered under the requested name.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolExecution wraps any failure returned by a tool handler.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrToolCollision indicates a tool name is already registered.
	ErrToolCollision = errors.New("tool name collision")
)

// Definition describes a tool to the reasoning provider.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Invocation identifies who is calling a tool and from where.
type Invocation struct {
	Bot     string
	Channel string
	Board   string
	Thread  string
}

// Handler executes a tool. It receives the raw JSON arguments chosen by the
// reasoner and returns the text fed back into the bot's context.
type Handler func(ctx context.Context, inv Invocation, input json.RawMessage) (string, error)

// Tool pairs a definition with its handler.
type Tool struct {
	Definition Definition
	Handler    Handler
}

// Pack is a named group of tools registered together.
type Pack struct {
	ID    string
	Tools []*Tool
}

type entry struct {
	tool   *Tool
	packID string
}

// Registry is the lookup table from tool name to handler.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*entry
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*entry),
		logger: logger.With("component", "tools"),
	}
}

// RegisterPack adds every tool in pack. Nothing is registered if any name
// collides with an existing tool or repeats within the pack.
func (r *Registry) RegisterPack(pack *Pack) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(pack.Tools))
	for _, tool := range pack.Tools {
		name := tool.Definition.Name
		if existing, ok := r.tools[name]; ok {
			return fmt.Errorf("%w: tool '%s' already registered by pack '%s'", ErrToolCollision, name, existing.packID)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: tool '%s' appears twice in pack '%s'", ErrToolCollision, name, pack.ID)
		}
		seen[name] = struct{}{}
	}

	for _, tool := range pack.Tools {
		r.tools[tool.Definition.Name] = &entry{tool: tool, packID: pack.ID}
	}

	r.logger.Info("tool pack registered",
		"pack_id", pack.ID,
		"tool_count", len(pack.Tools),
		"total_tools", len(r.tools),
	)
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return e.tool, nil
}

// Definitions returns every tool definition sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, name := range slices.Sorted(maps.Keys(r.tools)) {
		defs = append(defs, r.tools[name].tool.Definition)
	}
	return defs
}

// Names returns the registered tool names sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.tools))
}

// Execute looks up and runs a tool. Lookup misses return ErrToolNotFound and
// handler failures are wrapped in ErrToolExecution.
func (r *Registry) Execute(ctx context.Context, name string, inv Invocation, input json.RawMessage) (string, error) {
	tool, err := r.Get(name)
	if err != nil {
		metrics.ToolCalls.WithLabelValues("unknown", "not_found").Inc()
		return "", err
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	out, err := tool.Handler(ctx, inv, input)
	if err != nil {
		metrics.ToolCalls.WithLabelValues(name, "error").Inc()
		r.logger.Debug("tool failed", "tool", name, "bot", inv.Bot, "error", err)
		return "", fmt.Errorf("%w: %s: %w", ErrToolExecution, name, err)
	}
	metrics.ToolCalls.WithLabelValues(name, "ok").Inc()
	return out, nil
}
