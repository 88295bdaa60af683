// ABOUTME: Token budget tracker enforcing daily and monthly limits per provider and model
// ABOUTME: Usage is persisted through the store; limits come from config and runtime edits

package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/cool-squad/internal/metrics"
	"github.com/2389/cool-squad/internal/store"
)

var (
	// ErrBudgetExceeded is returned by Check when a limit has been reached.
	ErrBudgetExceeded = errors.New("token budget exceeded")

	// ErrInvalidLimit is returned for limits without a provider or with
	// negative values.
	ErrInvalidLimit = errors.New("invalid budget limit")

	// ErrLimitNotFound is returned when deleting a limit that does not exist.
	ErrLimitNotFound = errors.New("budget limit not found")
)

type limitKey struct {
	provider string
	model    string
}

// Config configures a Tracker.
type Config struct {
	Usage store.UsageStore

	// Limits persists runtime edits. Nil keeps edits in memory only.
	Limits store.LimitStore

	// Defaults are the configured limits. Persisted limits override them.
	Defaults []store.BudgetLimit

	// Now returns the current time. Nil uses time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Tracker records token usage and gates provider calls on it.
type Tracker struct {
	mu      sync.RWMutex
	limits  map[limitKey]store.BudgetLimit
	usage   store.UsageStore
	persist store.LimitStore
	now     func() time.Time
	logger  *slog.Logger
}

// NewTracker creates a tracker, loading persisted limits over the defaults.
func NewTracker(ctx context.Context, cfg Config) (*Tracker, error) {
	if cfg.Usage == nil {
		return nil, errors.New("budget: usage store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	t := &Tracker{
		limits:  make(map[limitKey]store.BudgetLimit),
		usage:   cfg.Usage,
		persist: cfg.Limits,
		now:     now,
		logger:  logger.With("component", "budget"),
	}
	for _, l := range cfg.Defaults {
		if err := validate(l); err != nil {
			return nil, err
		}
		t.limits[limitKey{l.Provider, l.Model}] = l
	}
	if cfg.Limits != nil {
		persisted, err := cfg.Limits.ListLimits(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading budget limits: %w", err)
		}
		for _, l := range persisted {
			t.limits[limitKey{l.Provider, l.Model}] = l
		}
	}
	return t, nil
}

func validate(l store.BudgetLimit) error {
	if l.Provider == "" {
		return fmt.Errorf("%w: provider is required", ErrInvalidLimit)
	}
	if l.Daily < 0 || l.Monthly < 0 {
		return fmt.Errorf("%w: limits must be non-negative", ErrInvalidLimit)
	}
	return nil
}

// periodStarts returns the start of the current UTC day and month.
func (t *Tracker) periodStarts() (day, month time.Time) {
	now := t.now().UTC()
	day = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	month = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return day, month
}

// used returns the tokens spent since the start of the day and month. An
// empty model covers every model of the provider.
func (t *Tracker) used(ctx context.Context, provider, model string) (daily, monthly int64, err error) {
	day, month := t.periodStarts()
	filter := store.UsageFilter{Provider: &provider}
	if model != "" {
		filter.Model = &model
	}

	filter.Since = &day
	d, err := t.usage.GetUsageStats(ctx, filter)
	if err != nil {
		return 0, 0, fmt.Errorf("reading daily usage: %w", err)
	}
	filter.Since = &month
	m, err := t.usage.GetUsageStats(ctx, filter)
	if err != nil {
		return 0, 0, fmt.Errorf("reading monthly usage: %w", err)
	}
	return d.TotalTokens, m.TotalTokens, nil
}

// Check returns ErrBudgetExceeded when the model's or the provider's usage
// for the current day or month has reached its limit.
func (t *Tracker) Check(ctx context.Context, provider, model string) error {
	t.mu.RLock()
	var applicable []store.BudgetLimit
	if l, ok := t.limits[limitKey{provider, model}]; ok && model != "" {
		applicable = append(applicable, l)
	}
	if l, ok := t.limits[limitKey{provider, ""}]; ok {
		applicable = append(applicable, l)
	}
	t.mu.RUnlock()

	for _, l := range applicable {
		if l.Daily == 0 && l.Monthly == 0 {
			continue
		}
		daily, monthly, err := t.used(ctx, l.Provider, l.Model)
		if err != nil {
			return err
		}
		scope := "provider " + l.Provider
		if l.Model != "" {
			scope = "model " + l.Provider + "/" + l.Model
		}
		if l.Daily > 0 && daily >= l.Daily {
			t.logger.Warn("daily token limit reached", "scope", scope, "used", daily, "limit", l.Daily)
			return fmt.Errorf("%w: %s daily limit of %d tokens reached", ErrBudgetExceeded, scope, l.Daily)
		}
		if l.Monthly > 0 && monthly >= l.Monthly {
			t.logger.Warn("monthly token limit reached", "scope", scope, "used", monthly, "limit", l.Monthly)
			return fmt.Errorf("%w: %s monthly limit of %d tokens reached", ErrBudgetExceeded, scope, l.Monthly)
		}
	}
	return nil
}

// Record stores one call's usage.
func (t *Tracker) Record(ctx context.Context, bot, provider, model string, inputTokens, outputTokens int64) error {
	err := t.usage.SaveUsage(ctx, &store.TokenUsage{
		ID:           uuid.NewString(),
		Bot:          bot,
		Provider:     provider,
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CreatedAt:    t.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}
	metrics.TokensUsed.WithLabelValues(provider, model).Add(float64(inputTokens + outputTokens))
	return nil
}

// SetLimit adds or replaces a limit.
func (t *Tracker) SetLimit(ctx context.Context, limit store.BudgetLimit) error {
	if err := validate(limit); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.persist != nil {
		if err := t.persist.SaveLimit(ctx, limit); err != nil {
			return fmt.Errorf("saving budget limit: %w", err)
		}
	}
	t.limits[limitKey{limit.Provider, limit.Model}] = limit
	t.logger.Info("budget limit set", "provider", limit.Provider, "model", limit.Model,
		"daily", limit.Daily, "monthly", limit.Monthly)
	return nil
}

// DeleteLimit removes a limit. A configured default that was never
// persisted is removed from memory only.
func (t *Tracker) DeleteLimit(ctx context.Context, provider, model string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := limitKey{provider, model}
	if _, ok := t.limits[key]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrLimitNotFound, provider, model)
	}
	if t.persist != nil {
		if err := t.persist.DeleteLimit(ctx, provider, model); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("deleting budget limit: %w", err)
		}
	}
	delete(t.limits, key)
	return nil
}

// Limits returns every limit ordered by provider then model.
func (t *Tracker) Limits() []store.BudgetLimit {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]store.BudgetLimit, 0, len(t.limits))
	for _, l := range t.limits {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Model < out[j].Model
	})
	return out
}

// LimitStatus is a limit with current usage.
type LimitStatus struct {
	store.BudgetLimit
	DailyUsed   int64 `json:"daily_used"`
	MonthlyUsed int64 `json:"monthly_used"`
}

// Report is the usage report served by the API.
type Report struct {
	DayStart   time.Time        `json:"day_start"`
	MonthStart time.Time        `json:"month_start"`
	Today      store.UsageStats `json:"today"`
	ThisMonth  store.UsageStats `json:"this_month"`
	AllTime    store.UsageStats `json:"all_time"`
	Limits     []LimitStatus    `json:"limits"`
}

// Report summarizes usage for the current periods and every limit.
func (t *Tracker) Report(ctx context.Context) (*Report, error) {
	day, month := t.periodStarts()
	r := &Report{DayStart: day, MonthStart: month, Limits: []LimitStatus{}}

	for _, p := range []struct {
		since *time.Time
		dst   *store.UsageStats
	}{
		{&day, &r.Today},
		{&month, &r.ThisMonth},
		{nil, &r.AllTime},
	} {
		stats, err := t.usage.GetUsageStats(ctx, store.UsageFilter{Since: p.since})
		if err != nil {
			return nil, fmt.Errorf("reading usage: %w", err)
		}
		*p.dst = *stats
	}

	for _, l := range t.Limits() {
		daily, monthly, err := t.used(ctx, l.Provider, l.Model)
		if err != nil {
			return nil, err
		}
		r.Limits = append(r.Limits, LimitStatus{BudgetLimit: l, DailyUsed: daily, MonthlyUsed: monthly})
	}
	return r, nil
}
