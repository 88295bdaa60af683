// ABOUTME: SQLite implementation for token usage and budget limits
// ABOUTME: Stores reasoning token consumption and runtime-edited limits

package store

import (
	"context"
	"fmt"
	"time"
)

// SaveUsage stores a token usage record.
func (s *SQLiteStore) SaveUsage(ctx context.Context, usage *TokenUsage) error {
	query := `
		INSERT INTO token_usage (id, bot, provider, model, input_tokens, output_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		usage.ID,
		usage.Bot,
		usage.Provider,
		usage.Model,
		usage.InputTokens,
		usage.OutputTokens,
		usage.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting usage: %w", err)
	}

	s.logger.Debug("saved token usage",
		"id", usage.ID,
		"bot", usage.Bot,
		"provider", usage.Provider,
		"model", usage.Model,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
	)
	return nil
}

// GetUsageStats returns aggregated usage statistics with optional filters.
func (s *SQLiteStore) GetUsageStats(ctx context.Context, filter UsageFilter) (*UsageStats, error) {
	query := `
		SELECT
			COALESCE(SUM(input_tokens), 0) as total_input,
			COALESCE(SUM(output_tokens), 0) as total_output,
			COUNT(*) as request_count
		FROM token_usage
		WHERE 1=1
	`
	args := []any{}

	if filter.Provider != nil {
		query += " AND provider = ?"
		args = append(args, *filter.Provider)
	}
	if filter.Model != nil {
		query += " AND model = ?"
		args = append(args, *filter.Model)
	}
	if filter.Bot != nil {
		query += " AND bot = ?"
		args = append(args, *filter.Bot)
	}
	if filter.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	if filter.Until != nil {
		query += " AND created_at < ?"
		args = append(args, filter.Until.UTC().Format(timeLayout))
	}

	var stats UsageStats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.TotalInput,
		&stats.TotalOutput,
		&stats.RequestCount,
	)
	if err != nil {
		return nil, fmt.Errorf("querying usage stats: %w", err)
	}
	stats.TotalTokens = stats.TotalInput + stats.TotalOutput
	return &stats, nil
}

// SaveLimit inserts or replaces a budget limit.
func (s *SQLiteStore) SaveLimit(ctx context.Context, limit BudgetLimit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budget_limits (provider, model, daily, monthly)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(provider, model) DO UPDATE SET daily = excluded.daily, monthly = excluded.monthly
	`, limit.Provider, limit.Model, limit.Daily, limit.Monthly)
	if err != nil {
		return fmt.Errorf("saving budget limit: %w", err)
	}
	return nil
}

// DeleteLimit removes a budget limit. Returns ErrNotFound if none exists.
func (s *SQLiteStore) DeleteLimit(ctx context.Context, provider, model string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM budget_limits WHERE provider = ? AND model = ?`, provider, model)
	if err != nil {
		return fmt.Errorf("deleting budget limit: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLimits returns every persisted limit ordered by provider then model.
func (s *SQLiteStore) ListLimits(ctx context.Context) ([]BudgetLimit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, model, daily, monthly FROM budget_limits ORDER BY provider, model`)
	if err != nil {
		return nil, fmt.Errorf("querying budget limits: %w", err)
	}
	var limits []BudgetLimit
	err = scanEach(rows, func() error {
		var l BudgetLimit
		if err := rows.Scan(&l.Provider, &l.Model, &l.Daily, &l.Monthly); err != nil {
			return fmt.Errorf("scanning budget limit: %w", err)
		}
		limits = append(limits, l)
		return nil
	})
	return limits, err
}

// usageWindow reports whether t falls inside [since, until).
func usageWindow(t time.Time, since, until *time.Time) bool {
	if since != nil && t.Before(*since) {
		return false
	}
	if until != nil && !t.Before(*until) {
		return false
	}
	return true
}
