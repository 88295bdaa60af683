// ABOUTME: Interactive init command writing config.yaml and a starter bots.toml
// ABOUTME: Every prompt has a default, so pressing enter throughout gives a working setup

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/cool-squad/internal/bot"
)

// initAnswers are the values collected by runInit.
type initAnswers struct {
	HTTPAddr         string
	DBPath           string
	RosterPath       string
	Tailscale        bool
	TSHostname       string
	TSAuthKey        string
	TSEphemeral      bool
	TSFunnel         bool
	Autonomous       bool
	DefaultResponder string
	LogLevel         string
	LogFormat        string
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("cool-squad configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	var a initAnswers

	fmt.Println("\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, "HTTP address", "127.0.0.1:8080")

	fmt.Println("\n--- Storage ---")
	a.DBPath = prompt(reader, "SQLite database path (\"memory\" for none)", filepath.Join(defaultDataPath, "squad.db"))
	if a.DBPath == "memory" {
		a.DBPath = ""
	}

	fmt.Println("\n--- Bots ---")
	a.RosterPath = prompt(reader, "Bot roster file", filepath.Join(filepath.Dir(outputFile), "bots.toml"))
	a.DefaultResponder = prompt(reader, "Bot answering every message in #everyone (empty for none)", "")
	a.Autonomous = isYes(prompt(reader, "Let bots think and speak on their own?", "no"))

	fmt.Println("\n--- Tailscale Configuration ---")
	a.Tailscale = isYes(prompt(reader, "Enable Tailscale?", "no"))
	if a.Tailscale {
		a.TSHostname = prompt(reader, "Tailscale hostname", "cool-squad")
		a.TSAuthKey = prompt(reader, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		a.TSEphemeral = isYes(prompt(reader, "Ephemeral node?", "no"))
		a.TSFunnel = isYes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	wroteRoster, err := writeRoster(a.RosterPath)
	if err != nil {
		return err
	}

	if a.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(a.DBPath), 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	if wroteRoster {
		fmt.Printf("Bot roster written to %s\n", a.RosterPath)
	} else {
		fmt.Printf("Keeping existing bot roster %s\n", a.RosterPath)
	}
	fmt.Println("\nSet OPENAI_API_KEY and/or ANTHROPIC_API_KEY (a .env file works), then start the server:")
	fmt.Printf("  cool-squad serve\n")

	return nil
}

// writeRoster writes the built-in roster to path unless a file is already there.
func writeRoster(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("creating roster directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(bot.DefaultRosterTOML()), 0o644); err != nil {
		return false, fmt.Errorf("writing bot roster: %w", err)
	}
	return true, nil
}

func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# cool-squad configuration\n")
	cfg.WriteString("# Generated by cool-squad init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n", a.HTTPAddr)
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n", a.DBPath)
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", a.Tailscale)
	if a.Tailscale {
		fmt.Fprintf(&cfg, "  hostname: %q\n", a.TSHostname)
		if a.TSAuthKey != "" {
			fmt.Fprintf(&cfg, "  auth_key: %q\n", a.TSAuthKey)
		}
		fmt.Fprintf(&cfg, "  ephemeral: %t\n", a.TSEphemeral)
		fmt.Fprintf(&cfg, "  funnel: %t\n", a.TSFunnel)
	}
	cfg.WriteString("\n")

	cfg.WriteString("chat:\n")
	cfg.WriteString("  history_limit: 0\n")
	cfg.WriteString("  everyone_channel: \"everyone\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("stream:\n")
	cfg.WriteString("  queue_size: 256\n")
	cfg.WriteString("  ping_interval: \"30s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("bots:\n")
	fmt.Fprintf(&cfg, "  roster_file: %q\n", a.RosterPath)
	cfg.WriteString("  max_tool_steps: 5\n")
	cfg.WriteString("  reasoning_timeout: \"60s\"\n")
	if a.DefaultResponder != "" {
		fmt.Fprintf(&cfg, "  default_responder: %q\n", a.DefaultResponder)
	}
	cfg.WriteString("\n")

	cfg.WriteString("providers:\n")
	cfg.WriteString("  openai:\n")
	cfg.WriteString("    api_key: \"${OPENAI_API_KEY}\"\n")
	cfg.WriteString("  anthropic:\n")
	cfg.WriteString("    api_key: \"${ANTHROPIC_API_KEY}\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("autonomous:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", a.Autonomous)
	cfg.WriteString("  schedule: \"*/10 * * * *\"\n")
	cfg.WriteString("  quiet_period: \"5m\"\n")
	cfg.WriteString("  speak_chance: 0.1\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", a.LogFormat)
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: false\n")
	cfg.WriteString("  path: \"/metrics\"\n")

	return cfg.String()
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
