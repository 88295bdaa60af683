// ABOUTME: Tests for roster parsing, the bot roster and mention detection
// ABOUTME: Profiles come from TOML strings and temp files; the roster from literal profiles

package bot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProfiles(t *testing.T) {
	profiles := DefaultProfiles()
	var names []string
	for _, p := range profiles {
		names = append(names, p.Name)
		assert.NotEmpty(t, p.Personality, p.Name)
		assert.Equal(t, DefaultProvider, p.Provider)
		assert.Equal(t, DefaultTemperature, p.Temperature)
		assert.True(t, p.UseMonologue)
	}
	assert.ElementsMatch(t, []string{"curator", "ole_scrappy", "rosicrucian_riddles", "normie", "obsessive_curator"}, names)
}

func TestParseProfiles(t *testing.T) {
	profiles, err := ParseProfiles(`
[[bots]]
name = "Sage"
personality = "wise"
provider = "anthropic"
model = "claude-sonnet-4-5"
temperature = 0.2
use_monologue = false
max_thoughts = 3
`)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	p := profiles[0]
	assert.Equal(t, "sage", p.Name)
	assert.Equal(t, "anthropic", p.Provider)
	assert.Equal(t, 0.2, p.Temperature)
	assert.False(t, p.UseMonologue)
	assert.Equal(t, 3, p.MaxThoughts)
}

func TestParseProfiles_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":     ``,
		"bad name":  "[[bots]]\nname = \"has space\"",
		"duplicate": "[[bots]]\nname = \"a\"\n[[bots]]\nname = \"A\"",
		"negative":  "[[bots]]\nname = \"a\"\nmax_thoughts = -1",
		"not toml":  "[[bots]\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseProfiles(src)
			assert.Error(t, err)
		})
	}
}

func TestLoadProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bots.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[bots]]\nname = \"solo\"\n"), 0o644))

	profiles, err := LoadProfiles(path)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, DefaultModel, profiles[0].Model)

	_, err = LoadProfiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	defaults, err := LoadProfiles("")
	require.NoError(t, err)
	assert.Len(t, defaults, 5)
}

func TestRoster(t *testing.T) {
	r := NewRoster([]Profile{
		{Name: "b", UseMonologue: true, MaxThoughts: 4},
		{Name: "a", UseMonologue: false, Debug: true, MaxThoughts: 2},
	}, nil)

	assert.Equal(t, []string{"a", "b"}, r.Names())
	assert.Len(t, r.All(), 2)

	a, err := r.Get("a")
	require.NoError(t, err)
	info := a.Info()
	assert.False(t, info.UseMonologue)
	assert.True(t, info.Debug)
	assert.Equal(t, 2, info.MaxThoughts)

	_, err = r.Get("zed")
	assert.ErrorIs(t, err, ErrUnknownBot)
}

func TestMentions(t *testing.T) {
	names := []string{"curator", "normie", "ole_scrappy"}
	tests := []struct {
		content string
		want    []string
	}{
		{"hello", nil},
		{"@curator summarize", []string{"curator"}},
		{"hey @CURATOR, thoughts?", []string{"curator"}},
		{"@normie and @curator and @normie again", []string{"normie", "curator"}},
		{"@curators are great", nil},
		{"mail me at bob@curator.com", nil},
		{"ask @ole_scrappy.", []string{"ole_scrappy"}},
		{"(@normie)", []string{"normie"}},
		{"@normie-- you there", []string{"normie"}},
		{"@ curator", nil},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			assert.Equal(t, tt.want, Mentions(tt.content, names))
		})
	}
}
