// ABOUTME: Provider construction from configuration
// ABOUTME: Maps provider names used in bot profiles to bot.Reasoner implementations

package reasoning

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/2389/cool-squad/internal/bot"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderScripted  = "scripted"

	defaultMaxOutputTokens = 1024
)

// ErrMissingAPIKey indicates a provider is configured without credentials.
var ErrMissingAPIKey = errors.New("api key not set")

// ProviderConfig configures one provider.
type ProviderConfig struct {
	APIKey          string
	BaseURL         string
	MaxOutputTokens int64
}

func (c ProviderConfig) maxOutputTokens() int64 {
	if c.MaxOutputTokens > 0 {
		return c.MaxOutputTokens
	}
	return defaultMaxOutputTokens
}

// Build creates a reasoner for every configured provider. Providers without
// an API key are skipped with a warning; bots using them fail their runs with
// bot.ErrReasoningUnavailable. The scripted provider is always available.
func Build(providers map[string]ProviderConfig, logger *slog.Logger) (map[string]bot.Reasoner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	out := map[string]bot.Reasoner{ProviderScripted: NewScripted()}

	for _, name := range slices.Sorted(maps.Keys(providers)) {
		cfg := providers[name]
		var (
			r   bot.Reasoner
			err error
		)
		switch name {
		case ProviderOpenAI:
			r, err = NewOpenAI(cfg, logger)
		case ProviderAnthropic:
			r, err = NewAnthropic(cfg, logger)
		case ProviderScripted:
			continue
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		if errors.Is(err, ErrMissingAPIKey) {
			logger.Warn("provider disabled", "provider", name, "reason", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating provider %s: %w", name, err)
		}
		out[name] = r
	}
	return out, nil
}
