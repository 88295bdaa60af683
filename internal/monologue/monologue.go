// ABOUTME: Per-bot private scratch memory of thoughts and tool considerations
// ABOUTME: Thoughts live in a bounded ring; considerations are keyed by tool name

package monologue

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultMaxThoughts is the thought capacity of a new monologue.
const DefaultMaxThoughts = 50

// Category classifies a thought.
type Category string

const (
	CategoryInput         Category = "input"
	CategoryReasoning     Category = "reasoning"
	CategoryToolSelection Category = "tool_selection"
	CategoryToolUse       Category = "tool_use"
	CategoryToolResult    Category = "tool_result"
	CategoryResponse      Category = "response"
	CategoryFinalResponse Category = "final_response"
	CategoryAutonomous    Category = "autonomous"
	CategoryError         Category = "error"
	CategoryGeneral       Category = "general"
)

var categories = []Category{
	CategoryInput, CategoryReasoning, CategoryToolSelection, CategoryToolUse,
	CategoryToolResult, CategoryResponse, CategoryFinalResponse,
	CategoryAutonomous, CategoryError, CategoryGeneral,
}

// ParseCategory validates a category name. An empty name is CategoryGeneral.
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return CategoryGeneral, nil
	}
	c := Category(s)
	if !slices.Contains(categories, c) {
		return "", fmt.Errorf("unknown thought category %q", s)
	}
	return c, nil
}

// Thought is one entry in the monologue.
type Thought struct {
	Content   string    `json:"content"`
	Category  Category  `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

func (t Thought) String() string {
	return fmt.Sprintf("[%s] %s", t.Category, t.Content)
}

// ToolConsideration records why a tool was, or might be, used.
type ToolConsideration struct {
	ToolName       string    `json:"tool_name"`
	Reasoning      string    `json:"reasoning"`
	RelevanceScore float64   `json:"relevance_score"`
	Timestamp      time.Time `json:"timestamp"`
}

func (tc ToolConsideration) String() string {
	return fmt.Sprintf("%s (relevance: %.2f): %s", tc.ToolName, tc.RelevanceScore, tc.Reasoning)
}

// Settings are the mutable switches of a monologue.
type Settings struct {
	Enabled     bool `json:"enabled"`
	Debug       bool `json:"debug"`
	MaxThoughts int  `json:"max_thoughts"`
}

// Snapshot is a copy of a monologue's full state.
type Snapshot struct {
	Settings
	Thoughts           []Thought           `json:"thoughts"`
	ToolConsiderations []ToolConsideration `json:"tool_considerations"`
	LastInteraction    time.Time           `json:"last_interaction"`
}

// Monologue is safe for concurrent use.
type Monologue struct {
	mu              sync.RWMutex
	thoughts        *Ring[Thought]
	considerations  map[string]ToolConsideration
	enabled         bool
	debug           bool
	lastInteraction time.Time
	now             func() time.Time
}

// New creates an enabled monologue holding at most maxThoughts thoughts.
func New(maxThoughts int) *Monologue {
	return &Monologue{
		thoughts:       NewRing[Thought](maxThoughts),
		considerations: make(map[string]ToolConsideration),
		enabled:        true,
		now:            time.Now,
	}
}

// AddThought records a thought, evicting the oldest when full.
func (m *Monologue) AddThought(content string, category Category) Thought {
	if category == "" {
		category = CategoryGeneral
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := Thought{Content: content, Category: category, Timestamp: m.now()}
	m.thoughts.Push(t)
	return t
}

// ConsiderTool records a consideration, replacing any earlier one for the
// same tool. The score is clamped to [0, 1].
func (m *Monologue) ConsiderTool(toolName, reasoning string, relevance float64) {
	relevance = min(max(relevance, 0), 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.considerations[toolName] = ToolConsideration{
		ToolName:       toolName,
		Reasoning:      reasoning,
		RelevanceScore: relevance,
		Timestamp:      m.now(),
	}
}

// RecentThoughts returns up to limit of the newest thoughts, oldest first,
// optionally filtered by category. A limit <= 0 returns all matches.
func (m *Monologue) RecentThoughts(limit int, category Category) []Thought {
	m.mu.RLock()
	all := m.thoughts.Items()
	m.mu.RUnlock()

	if category != "" {
		all = slices.DeleteFunc(all, func(t Thought) bool { return t.Category != category })
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all
}

// ThoughtCount returns the number of retained thoughts.
func (m *Monologue) ThoughtCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.thoughts.Len()
}

// ToolConsiderations returns every consideration sorted by tool name.
func (m *Monologue) ToolConsiderations() []ToolConsideration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ToolConsideration, 0, len(m.considerations))
	for _, name := range slices.Sorted(maps.Keys(m.considerations)) {
		out = append(out, m.considerations[name])
	}
	return out
}

// RelevantTools returns considerations scoring at least minRelevance.
func (m *Monologue) RelevantTools(minRelevance float64) []ToolConsideration {
	return slices.DeleteFunc(m.ToolConsiderations(), func(tc ToolConsideration) bool {
		return tc.RelevanceScore < minRelevance
	})
}

// ClearThoughts drops every thought.
func (m *Monologue) ClearThoughts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thoughts.Clear()
}

// ClearToolConsiderations drops every consideration.
func (m *Monologue) ClearToolConsiderations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.considerations)
}

// Settings returns the current settings.
func (m *Monologue) Settings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Settings{Enabled: m.enabled, Debug: m.debug, MaxThoughts: m.thoughts.Cap()}
}

// Enabled reports whether thoughts should be recorded.
func (m *Monologue) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// SetEnabled toggles recording.
func (m *Monologue) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = enabled
}

// SetDebug toggles debug output.
func (m *Monologue) SetDebug(debug bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debug = debug
}

// SetMaxThoughts changes the capacity, keeping the most recent thoughts.
func (m *Monologue) SetMaxThoughts(n int) error {
	if n < 0 {
		return fmt.Errorf("max_thoughts must be >= 0, got %d", n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thoughts.Resize(n)
	return nil
}

// Touch records an interaction at the current time.
func (m *Monologue) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastInteraction = m.now()
}

// LastInteraction returns the time of the last Touch.
func (m *Monologue) LastInteraction() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastInteraction
}

// Snapshot copies the whole monologue.
func (m *Monologue) Snapshot() Snapshot {
	considerations := m.ToolConsiderations()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Settings:           Settings{Enabled: m.enabled, Debug: m.debug, MaxThoughts: m.thoughts.Cap()},
		Thoughts:           m.thoughts.Items(),
		ToolConsiderations: considerations,
		LastInteraction:    m.lastInteraction,
	}
}

// Summarize lists the newest thoughts as "- [category] content" lines.
func (m *Monologue) Summarize(limit int) string {
	thoughts := m.RecentThoughts(limit, "")
	lines := make([]string, len(thoughts))
	for i, t := range thoughts {
		lines[i] = "- " + t.String()
	}
	return strings.Join(lines, "\n")
}

// FormatForPrompt renders the newest thoughts for inclusion in a prompt.
func (m *Monologue) FormatForPrompt(limit int) string {
	thoughts := m.RecentThoughts(limit, "")
	lines := make([]string, len(thoughts))
	for i, t := range thoughts {
		lines[i] = "Thought: " + t.Content
	}
	return strings.Join(lines, "\n")
}
