// ABOUTME: Bot profiles and the TOML roster they are loaded from
// ABOUTME: A built-in roster is embedded for installs without a roster file

package bot

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/2389/cool-squad/internal/monologue"
)

//go:embed defaults.toml
var defaultRoster string

const (
	DefaultProvider    = "openai"
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.7
)

var botNamePattern = regexp.MustCompile(`^[a-z0-9_][a-z0-9_-]*$`)

// Profile is the static description of a bot.
type Profile struct {
	Name         string  `json:"name"`
	Personality  string  `json:"personality"`
	Provider     string  `json:"provider"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	UseMonologue bool    `json:"use_monologue"`
	Debug        bool    `json:"debug"`
	MaxThoughts  int     `json:"max_thoughts"`
}

type profileFile struct {
	Name         string   `toml:"name"`
	Personality  string   `toml:"personality"`
	Provider     string   `toml:"provider"`
	Model        string   `toml:"model"`
	Temperature  *float64 `toml:"temperature"`
	UseMonologue *bool    `toml:"use_monologue"`
	Debug        bool     `toml:"debug"`
	MaxThoughts  *int     `toml:"max_thoughts"`
}

type rosterFile struct {
	Bots []profileFile `toml:"bots"`
}

// DefaultProfiles returns the built-in roster.
func DefaultProfiles() []Profile {
	profiles, err := ParseProfiles(defaultRoster)
	if err != nil {
		panic(fmt.Sprintf("embedded roster is invalid: %v", err))
	}
	return profiles
}

// DefaultRosterTOML returns the built-in roster source, for writing a starter file.
func DefaultRosterTOML() string {
	return defaultRoster
}

// LoadProfiles reads a roster file. An empty path yields the built-in roster.
func LoadProfiles(path string) ([]Profile, error) {
	if path == "" {
		return DefaultProfiles(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading roster file: %w", err)
	}
	return ParseProfiles(string(data))
}

// ParseProfiles decodes a TOML roster and applies defaults.
func ParseProfiles(data string) ([]Profile, error) {
	var rf rosterFile
	if _, err := toml.Decode(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing roster: %w", err)
	}
	if len(rf.Bots) == 0 {
		return nil, fmt.Errorf("roster defines no bots")
	}

	seen := make(map[string]struct{}, len(rf.Bots))
	profiles := make([]Profile, 0, len(rf.Bots))
	for i, pf := range rf.Bots {
		name := strings.ToLower(strings.TrimSpace(pf.Name))
		if !botNamePattern.MatchString(name) {
			return nil, fmt.Errorf("bots[%d]: invalid name %q", i, pf.Name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("bots[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}

		p := Profile{
			Name:         name,
			Personality:  strings.TrimSpace(pf.Personality),
			Provider:     pf.Provider,
			Model:        pf.Model,
			Temperature:  DefaultTemperature,
			UseMonologue: true,
			Debug:        pf.Debug,
			MaxThoughts:  monologue.DefaultMaxThoughts,
		}
		if p.Provider == "" {
			p.Provider = DefaultProvider
		}
		if p.Model == "" {
			p.Model = DefaultModel
		}
		if pf.Temperature != nil {
			p.Temperature = *pf.Temperature
		}
		if pf.UseMonologue != nil {
			p.UseMonologue = *pf.UseMonologue
		}
		if pf.MaxThoughts != nil {
			if *pf.MaxThoughts < 0 {
				return nil, fmt.Errorf("bots[%d]: max_thoughts must be >= 0", i)
			}
			p.MaxThoughts = *pf.MaxThoughts
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}
