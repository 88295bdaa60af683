// ABOUTME: Entry point for the cool-squad chat server
// ABOUTME: Serves channels, boards and bots; also writes starter config and checks health

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/2389/cool-squad/internal/client"
	"github.com/2389/cool-squad/internal/config"
	"github.com/2389/cool-squad/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                     _                                 _
  ___ ___   ___  | |      ___  __ _ _   _  __ _  __| |
 / __/ _ \ / _ \ | |_____/ __|/ _' | | | |/ _' |/ _' |
| (_| (_) | (_) || |_____\__ \ (_| | |_| | (_| | (_| |
 \___\___/ \___/ |_|     |___/\__, |\__,_|\__,_|\__,_|
                                  |_|
`

// getConfigPath returns the path to the server config file.
// Priority: COOL_SQUAD_CONFIG env var > XDG_CONFIG_HOME/cool-squad/config.yaml > ~/.config/cool-squad/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("COOL_SQUAD_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "cool-squad", "config.yaml")
}

// getDataPath returns the path to the cool-squad data directory.
// Priority: XDG_DATA_HOME/cool-squad > ~/.local/share/cool-squad
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "cool-squad")
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist yet.
func loadConfig(path string) (*config.Config, bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), false, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, false, fmt.Errorf("loading config: %w", err)
	}
	return cfg, true, nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: cool-squad <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the chat server")
		fmt.Println("  init     Create a config file and bot roster interactively")
		fmt.Println("  health   Check server health")
		fmt.Println("  bots     List the bots the server has loaded")
		os.Exit(1)
	}

	// Optional .env next to the binary's working directory
	_ = godotenv.Load(".env")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "bots":
		err = runBots(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, found, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	if found {
		fmt.Printf("Config:    %s\n", configPath)
	} else {
		fmt.Printf("Config:    ")
		yellow.Println("defaults (run 'cool-squad init' to create one)")
	}
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	if cfg.Database.Path != "" {
		fmt.Printf("Database:  %s\n", cfg.Database.Path)
	} else {
		fmt.Printf("Database:  ")
		yellow.Println("in memory")
	}

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		switch {
		case cfg.Tailscale.Funnel:
			yellow.Print(" [funnel]")
		case cfg.Tailscale.HTTPS:
			yellow.Print(" [https]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	if cfg.Autonomous.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Thinking:  %s\n", cfg.Autonomous.Schedule)
	}

	fmt.Println()

	logger.Info("starting cool-squad",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	gw, err := gateway.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// serverURL is the base URL the local commands use to reach the server.
func serverURL(cfg *config.Config) string {
	if env := os.Getenv("COOL_SQUAD_URL"); env != "" {
		return env
	}
	if cfg.Tailscale.Enabled {
		scheme := "http"
		if cfg.Tailscale.HTTPS || cfg.Tailscale.Funnel {
			scheme = "https"
		}
		return scheme + "://" + cfg.Tailscale.Hostname
	}
	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig(getConfigPath())
	if err != nil {
		return err
	}

	status, err := client.New(serverURL(cfg), nil).Health(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Println("healthy:", status)
	return nil
}

func runBots(ctx context.Context) error {
	cfg, _, err := loadConfig(getConfigPath())
	if err != nil {
		return err
	}

	bots, err := client.New(serverURL(cfg), nil).ListBots(ctx)
	if err != nil {
		return fmt.Errorf("listing bots: %w", err)
	}

	for _, name := range bots {
		fmt.Println(name)
	}
	return nil
}
