// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, duration parsing and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "0.0.0.0:9090"

database:
  path: "./squad.db"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true

chat:
  history_limit: 250
  boards:
    - id: ideas
      name: Ideas
      description: "half-baked plans"

stream:
  queue_size: 32
  ping_interval: "10s"

bots:
  roster_file: "bots.toml"
  max_tool_steps: 3
  reasoning_timeout: "2m"
  default_responder: "normie"

autonomous:
  enabled: true
  schedule: "*/5 * * * *"
  quiet_period: "1m"
  speak_chance: -1

budget:
  limits:
    - provider: openai
      daily: 1000
    - provider: anthropic
      model: claude-sonnet-4-5
      monthly: 50000

rate_limit:
  rps: 2
  burst: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "./squad.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Path)

	require.NotNil(t, cfg.Chat.HistoryLimit)
	assert.Equal(t, 250, *cfg.Chat.HistoryLimit)
	assert.Equal(t, []BoardConfig{{ID: "ideas", Name: "Ideas", Description: "half-baked plans"}}, cfg.Chat.Boards)

	assert.Equal(t, 32, cfg.Stream.QueueSize)
	assert.Equal(t, 10*time.Second, cfg.Stream.PingInterval)

	assert.Equal(t, "bots.toml", cfg.Bots.RosterFile)
	assert.Equal(t, 3, cfg.Bots.MaxToolSteps)
	assert.Equal(t, DefaultContextMessages, cfg.Bots.ContextMessages)
	assert.Equal(t, 2*time.Minute, cfg.Bots.ReasoningTimeout)
	assert.Equal(t, "normie", cfg.Bots.DefaultResponder)

	assert.True(t, cfg.Autonomous.Enabled)
	assert.Equal(t, "*/5 * * * *", cfg.Autonomous.Schedule)
	assert.Equal(t, time.Minute, cfg.Autonomous.QuietPeriod)
	require.NotNil(t, cfg.Autonomous.SpeakChance)
	assert.Equal(t, -1.0, *cfg.Autonomous.SpeakChance)

	require.Len(t, cfg.Budget.Limits, 2)
	assert.Equal(t, LimitConfig{Provider: "openai", Daily: 1000}, cfg.Budget.Limits[0])
	assert.Equal(t, "claude-sonnet-4-5", cfg.Budget.Limits[1].Model)

	assert.Equal(t, 2.0, cfg.RateLimit.RPS)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.HTTPAddr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, DefaultHistoryLimit, *cfg.Chat.HistoryLimit)
	assert.Zero(t, *cfg.Chat.HistoryLimit, "history events are uncapped unless configured")
	assert.Equal(t, DefaultQueueSize, cfg.Stream.QueueSize)
	assert.Equal(t, DefaultPingInterval, cfg.Stream.PingInterval)
	assert.Equal(t, DefaultMaxToolSteps, cfg.Bots.MaxToolSteps)
	assert.Equal(t, DefaultReasoningTimeout, cfg.Bots.ReasoningTimeout)
	assert.Equal(t, DefaultSchedule, cfg.Autonomous.Schedule)
	assert.Equal(t, DefaultQuietPeriod, cfg.Autonomous.QuietPeriod)
	assert.Equal(t, DefaultSpeakChance, *cfg.Autonomous.SpeakChance)
	assert.False(t, cfg.Autonomous.Enabled)
	assert.Zero(t, cfg.RateLimit.RPS)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")
	t.Setenv("TEST_DB_PATH", "/tmp/squad.db")

	cfg, err := Load(writeConfig(t, `
database:
  path: "${TEST_DB_PATH}"
providers:
  openai:
    api_key: "${TEST_OPENAI_KEY}"
  anthropic:
    api_key: "${TEST_UNSET_VARIABLE_XYZ}"
`))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/squad.db", cfg.Database.Path)
	assert.Equal(t, "sk-test", cfg.Providers.OpenAI.APIKey)
	assert.Empty(t, cfg.Providers.Anthropic.APIKey)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
stream:
  ping_interval: "soon"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream.ping_interval")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "tailscale without hostname",
			yaml: `
tailscale:
  enabled: true
`,
			wantErr: "tailscale.hostname",
		},
		{
			name: "tailscale replaces the listen address",
			yaml: `
tailscale:
  enabled: true
  hostname: squad
`,
		},
		{
			name: "unknown log level",
			yaml: `
logging:
  level: loud
`,
			wantErr: "logging.level",
		},
		{
			name: "unknown log format",
			yaml: `
logging:
  format: xml
`,
			wantErr: "logging.format",
		},
		{
			name: "negative history limit",
			yaml: `
chat:
  history_limit: -1
`,
			wantErr: "chat.history_limit",
		},
		{
			name: "board without id",
			yaml: `
chat:
  boards:
    - name: Ideas
`,
			wantErr: "chat.boards[0].id",
		},
		{
			name: "negative tool steps",
			yaml: `
bots:
  max_tool_steps: -2
`,
			wantErr: "bots.max_tool_steps",
		},
		{
			name: "speak chance above one",
			yaml: `
autonomous:
  speak_chance: 1.5
`,
			wantErr: "autonomous.speak_chance",
		},
		{
			name: "limit without provider",
			yaml: `
budget:
  limits:
    - daily: 10
`,
			wantErr: "budget.limits[0].provider",
		},
		{
			name: "negative limit",
			yaml: `
budget:
  limits:
    - provider: openai
      monthly: -1
`,
			wantErr: "must not be negative",
		},
		{
			name: "rate limit without burst",
			yaml: `
rate_limit:
  rps: 1
`,
			wantErr: "rate_limit.burst",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SQUAD_A", "one")
	t.Setenv("SQUAD_B", "two")

	assert.Equal(t, "one-two", expandEnvVars("${SQUAD_A}-${SQUAD_B}"))
	assert.Equal(t, "x  y", expandEnvVars("x ${SQUAD_NOT_SET_ANYWHERE} y"))
	assert.Equal(t, "$SQUAD_A", expandEnvVars("$SQUAD_A"))
}
