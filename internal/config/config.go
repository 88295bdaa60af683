// ABOUTME: Configuration loading and parsing for the cool-squad server
// ABOUTME: Supports YAML files with environment variable expansion, duration parsing and defaults

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when a field is left empty.
const (
	DefaultHTTPAddr         = "127.0.0.1:8080"
	DefaultHistoryLimit     = 0
	DefaultQueueSize        = 256
	DefaultPingInterval     = 30 * time.Second
	DefaultMaxToolSteps     = 5
	DefaultContextMessages  = 20
	DefaultReasoningTimeout = 60 * time.Second
	DefaultMetricsPath      = "/metrics"
	DefaultSchedule         = "*/10 * * * *"
	DefaultQuietPeriod      = 5 * time.Minute
	DefaultSpeakChance      = 0.1
)

// Config represents the complete cool-squad configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Tailscale  TailscaleConfig  `yaml:"tailscale"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Chat       ChatConfig       `yaml:"chat"`
	Stream     StreamConfig     `yaml:"stream"`
	Bots       BotsConfig       `yaml:"bots"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Autonomous AutonomousConfig `yaml:"autonomous"`
	Budget     BudgetConfig     `yaml:"budget"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

// ServerConfig holds the HTTP listen address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	HTTPS     bool   `yaml:"https"`  // tailnet-only HTTPS on :443 with Tailscale certs
	Funnel    bool   `yaml:"funnel"` // public Funnel, implies HTTPS on :443
}

// DatabaseConfig holds database configuration. An empty path keeps all
// state in memory.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text, json
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ChatConfig holds conversation settings
type ChatConfig struct {
	// HistoryLimit caps the messages in a channel history event. 0 means unlimited.
	HistoryLimit    *int          `yaml:"history_limit"`
	EveryoneChannel string        `yaml:"everyone_channel"`
	Boards          []BoardConfig `yaml:"boards"`
}

// BoardConfig is a board created at startup when it does not exist yet
type BoardConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// StreamConfig holds per-subscriber streaming settings
type StreamConfig struct {
	QueueSize    int           `yaml:"queue_size"`
	PingInterval time.Duration `yaml:"-"`

	PingIntervalRaw string `yaml:"ping_interval"`
}

// BotsConfig holds bot roster and engine settings
type BotsConfig struct {
	// RosterFile is a bots.toml path. Empty uses the built-in roster.
	RosterFile       string        `yaml:"roster_file"`
	MaxToolSteps     int           `yaml:"max_tool_steps"`
	ContextMessages  int           `yaml:"context_messages"`
	DefaultResponder string        `yaml:"default_responder"`
	ReasoningTimeout time.Duration `yaml:"-"`

	ReasoningTimeoutRaw string `yaml:"reasoning_timeout"`
}

// ProvidersConfig holds credentials for the reasoning providers
type ProvidersConfig struct {
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
}

// ProviderConfig holds one provider's credentials and endpoint
type ProviderConfig struct {
	APIKey          string `yaml:"api_key"`
	BaseURL         string `yaml:"base_url"`
	MaxOutputTokens int64  `yaml:"max_output_tokens"`
}

// AutonomousConfig holds scheduled autonomous thinking settings
type AutonomousConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Schedule    string        `yaml:"schedule"`
	SpeakChance *float64      `yaml:"speak_chance"`
	QuietPeriod time.Duration `yaml:"-"`

	QuietPeriodRaw string `yaml:"quiet_period"`
}

// BudgetConfig holds token limits applied at startup
type BudgetConfig struct {
	Limits []LimitConfig `yaml:"limits"`
}

// LimitConfig is a daily/monthly token limit for a provider, or for one
// model when Model is set. Zero means no limit.
type LimitConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Daily    int64  `yaml:"daily"`
	Monthly  int64  `yaml:"monthly"`
}

// RateLimitConfig holds per-author write limits. RPS of zero disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration content the same way Load does.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" && !c.Tailscale.Enabled {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Chat.HistoryLimit == nil {
		limit := DefaultHistoryLimit
		c.Chat.HistoryLimit = &limit
	}
	if c.Stream.QueueSize == 0 {
		c.Stream.QueueSize = DefaultQueueSize
	}
	if c.Stream.PingInterval == 0 {
		c.Stream.PingInterval = DefaultPingInterval
	}
	if c.Bots.MaxToolSteps == 0 {
		c.Bots.MaxToolSteps = DefaultMaxToolSteps
	}
	if c.Bots.ContextMessages == 0 {
		c.Bots.ContextMessages = DefaultContextMessages
	}
	if c.Bots.ReasoningTimeout == 0 {
		c.Bots.ReasoningTimeout = DefaultReasoningTimeout
	}
	if c.Autonomous.Schedule == "" {
		c.Autonomous.Schedule = DefaultSchedule
	}
	if c.Autonomous.QuietPeriod == 0 {
		c.Autonomous.QuietPeriod = DefaultQuietPeriod
	}
	if c.Autonomous.SpeakChance == nil {
		chance := DefaultSpeakChance
		c.Autonomous.SpeakChance = &chance
	}
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// A listen address is required unless Tailscale provides the listener
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	if c.Chat.HistoryLimit != nil && *c.Chat.HistoryLimit < 0 {
		return fmt.Errorf("chat.history_limit must not be negative")
	}
	for i, b := range c.Chat.Boards {
		if b.ID == "" {
			return fmt.Errorf("chat.boards[%d].id is required", i)
		}
	}
	if c.Stream.QueueSize < 1 {
		return fmt.Errorf("stream.queue_size must be at least 1")
	}
	if c.Bots.MaxToolSteps < 1 {
		return fmt.Errorf("bots.max_tool_steps must be at least 1")
	}
	if c.Bots.ContextMessages < 1 {
		return fmt.Errorf("bots.context_messages must be at least 1")
	}

	if c.Autonomous.SpeakChance != nil && *c.Autonomous.SpeakChance > 1 {
		return fmt.Errorf("autonomous.speak_chance must be at most 1")
	}

	for i, l := range c.Budget.Limits {
		if l.Provider == "" {
			return fmt.Errorf("budget.limits[%d].provider is required", i)
		}
		if l.Daily < 0 || l.Monthly < 0 {
			return fmt.Errorf("budget.limits[%d]: limits must not be negative", i)
		}
	}

	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit.burst is required when rate_limit.rps is set")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"stream.ping_interval", cfg.Stream.PingIntervalRaw, &cfg.Stream.PingInterval},
		{"bots.reasoning_timeout", cfg.Bots.ReasoningTimeoutRaw, &cfg.Bots.ReasoningTimeout},
		{"autonomous.quiet_period", cfg.Autonomous.QuietPeriodRaw, &cfg.Autonomous.QuietPeriod},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
