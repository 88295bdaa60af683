// Package config handles configuration loading for the cool-squad server.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// Every field has a default, so an empty file is a valid configuration.
//
// # Configuration File
//
// The server looks for its file in this order:
//
//  1. Path from COOL_SQUAD_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/cool-squad/config.yaml
//  3. ~/.config/cool-squad/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	providers:
//	  openai:
//	    api_key: "${OPENAI_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	stream:
//	  ping_interval: "30s"
//	bots:
//	  reasoning_timeout: "60s"
//	autonomous:
//	  quiet_period: "5m"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	database:
//	  path: "~/.local/share/cool-squad/squad.db"   # empty keeps state in memory
//	chat:
//	  history_limit: 0          # cap history events; 0 = unlimited
//	  everyone_channel: "everyone"
//	  boards:                   # created at startup when missing
//	    - id: "ideas"
//	      name: "Ideas"
//	stream:
//	  queue_size: 256
//	  ping_interval: "30s"
//	bots:
//	  roster_file: "bots.toml"  # empty uses the built-in roster
//	  max_tool_steps: 5
//	  context_messages: 20
//	  default_responder: ""
//	autonomous:
//	  enabled: false
//	  schedule: "*/10 * * * *"
//	  speak_chance: 0.1         # negative never speaks
//	budget:
//	  limits:
//	    - provider: openai
//	      daily: 500000
//	rate_limit:
//	  rps: 2
//	  burst: 5
//
// # Usage
//
//	cfg, err := config.Load("/etc/cool-squad/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
