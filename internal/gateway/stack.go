// ABOUTME: Builds the full conversation stack from configuration
// ABOUTME: Store, restore, roster, tools, reasoning providers, budget, engine, router and thinker

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/cool-squad/internal/autonomous"
	"github.com/2389/cool-squad/internal/bot"
	"github.com/2389/cool-squad/internal/budget"
	"github.com/2389/cool-squad/internal/config"
	"github.com/2389/cool-squad/internal/conversation"
	"github.com/2389/cool-squad/internal/reasoning"
	"github.com/2389/cool-squad/internal/router"
	"github.com/2389/cool-squad/internal/store"
	"github.com/2389/cool-squad/internal/tools"
)

// resolveDBPath applies the COOL_SQUAD_DB_PATH override and expands a
// leading "~/". An empty path keeps everything in memory.
func resolveDBPath(configured string) string {
	dbPath := configured
	if envPath := os.Getenv("COOL_SQUAD_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	if dbPath == "" {
		return ":memory:"
	}
	if rest, ok := strings.CutPrefix(dbPath, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			dbPath = filepath.Join(home, rest)
		}
	}
	return dbPath
}

func loadProfiles(cfg *config.Config) ([]bot.Profile, error) {
	if cfg.Bots.RosterFile == "" {
		return bot.DefaultProfiles(), nil
	}
	profiles, err := bot.LoadProfiles(cfg.Bots.RosterFile)
	if err != nil {
		return nil, fmt.Errorf("loading bot roster: %w", err)
	}
	return profiles, nil
}

func budgetDefaults(cfg *config.Config) []store.BudgetLimit {
	out := make([]store.BudgetLimit, len(cfg.Budget.Limits))
	for i, l := range cfg.Budget.Limits {
		out[i] = store.BudgetLimit{Provider: l.Provider, Model: l.Model, Daily: l.Daily, Monthly: l.Monthly}
	}
	return out
}

// New builds every component from cfg and returns a gateway serving them.
// Persisted conversation state is restored before the gateway is returned.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sqlStore, err := store.NewSQLiteStore(resolveDBPath(cfg.Database.Path), logger)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	deps, err := buildDeps(ctx, cfg, sqlStore, logger)
	if err != nil {
		_ = sqlStore.Close()
		return nil, err
	}
	return NewWithDeps(cfg, deps, logger), nil
}

func buildDeps(ctx context.Context, cfg *config.Config, st store.Store, logger *slog.Logger) (Deps, error) {
	if logger == nil {
		logger = slog.Default()
	}
	profiles, err := loadProfiles(cfg)
	if err != nil {
		return Deps{}, err
	}
	roster := bot.NewRoster(profiles, logger)

	historyLimit := 0
	if cfg.Chat.HistoryLimit != nil {
		historyLimit = *cfg.Chat.HistoryLimit
	}
	broadcaster := conversation.NewBroadcaster(conversation.BroadcasterConfig{
		QueueSize:    cfg.Stream.QueueSize,
		PingInterval: cfg.Stream.PingInterval,
		Logger:       logger,
	})
	conv := conversation.NewStore(conversation.StoreConfig{
		EveryoneChannel: cfg.Chat.EveryoneChannel,
		HistoryLimit:    historyLimit,
		Persister:       st,
		Broadcaster:     broadcaster,
		Logger:          logger,
	})

	snap, err := st.LoadSnapshot(ctx)
	if err != nil {
		return Deps{}, fmt.Errorf("loading persisted conversations: %w", err)
	}
	conv.Restore(snap)
	conv.SetRoster(roster.Names())
	for _, b := range cfg.Chat.Boards {
		if _, err := conv.CreateBoard(ctx, b.ID, b.Name, b.Description); err != nil {
			return Deps{}, fmt.Errorf("creating board %q: %w", b.ID, err)
		}
	}
	logger.Info("conversations restored",
		"channels", len(snap.Channels),
		"boards", len(snap.Boards))

	registry := tools.NewRegistry(logger)
	if err := registry.RegisterPack(tools.ConversationPack(conv)); err != nil {
		return Deps{}, fmt.Errorf("registering conversation tools: %w", err)
	}

	reasoners, err := reasoning.Build(map[string]reasoning.ProviderConfig{
		reasoning.ProviderOpenAI:    providerConfig(cfg.Providers.OpenAI),
		reasoning.ProviderAnthropic: providerConfig(cfg.Providers.Anthropic),
	}, logger)
	if err != nil {
		return Deps{}, err
	}

	tracker, err := budget.NewTracker(ctx, budget.Config{
		Usage:    st,
		Limits:   st,
		Defaults: budgetDefaults(cfg),
		Logger:   logger,
	})
	if err != nil {
		return Deps{}, err
	}

	engine := bot.NewEngine(bot.EngineConfig{
		Store:            conv,
		Tools:            registry,
		Roster:           roster,
		Reasoners:        reasoners,
		Budget:           tracker,
		MaxToolSteps:     cfg.Bots.MaxToolSteps,
		ContextMessages:  cfg.Bots.ContextMessages,
		ReasoningTimeout: cfg.Bots.ReasoningTimeout,
		Logger:           logger,
	})

	rt := router.New(router.Config{
		Store:            conv,
		Engine:           engine,
		Bots:             roster.Names(),
		DefaultResponder: cfg.Bots.DefaultResponder,
		Logger:           logger,
	})

	deps := Deps{
		Conversations: conv,
		Router:        rt,
		Roster:        roster,
		Budget:        tracker,
		Store:         st,
	}

	if cfg.Autonomous.Enabled {
		chance := autonomous.DefaultSpeakChance
		if cfg.Autonomous.SpeakChance != nil {
			chance = *cfg.Autonomous.SpeakChance
		}
		// A configured zero means never speak; the thinker reads zero as unset.
		if chance == 0 {
			chance = -1
		}
		thinker, err := autonomous.New(autonomous.Config{
			Engine:      engine,
			Poster:      rt,
			Store:       conv,
			Roster:      roster,
			Schedule:    cfg.Autonomous.Schedule,
			QuietPeriod: cfg.Autonomous.QuietPeriod,
			SpeakChance: chance,
			Logger:      logger,
		})
		if err != nil {
			rt.Close()
			return Deps{}, err
		}
		deps.Thinker = thinker
	}
	return deps, nil
}

func providerConfig(p config.ProviderConfig) reasoning.ProviderConfig {
	return reasoning.ProviderConfig{
		APIKey:          p.APIKey,
		BaseURL:         p.BaseURL,
		MaxOutputTokens: p.MaxOutputTokens,
	}
}
