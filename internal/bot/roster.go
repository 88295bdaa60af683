// ABOUTME: Roster of configured bots, each owning its monologue
// ABOUTME: Built once at startup; the set of bots does not change at runtime

package bot

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/2389/cool-squad/internal/monologue"
)

// Bot is a profile plus its live monologue.
type Bot struct {
	Profile
	Monologue *monologue.Monologue
}

// Info returns the profile with the monologue's current switches.
func (b *Bot) Info() Profile {
	p := b.Profile
	s := b.Monologue.Settings()
	p.UseMonologue = s.Enabled
	p.Debug = s.Debug
	p.MaxThoughts = s.MaxThoughts
	return p
}

// Roster indexes bots by name.
type Roster struct {
	bots  map[string]*Bot
	names []string
}

// NewRoster creates a bot with a fresh monologue for every profile.
func NewRoster(profiles []Profile, logger *slog.Logger) *Roster {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Roster{bots: make(map[string]*Bot, len(profiles))}
	for _, p := range profiles {
		m := monologue.New(p.MaxThoughts)
		m.SetEnabled(p.UseMonologue)
		m.SetDebug(p.Debug)
		r.bots[p.Name] = &Bot{Profile: p, Monologue: m}
		r.names = append(r.names, p.Name)
	}
	slices.Sort(r.names)

	logger.With("component", "roster").Info("bot roster loaded",
		"bots", r.names,
		"count", len(r.names))
	return r
}

// Get returns the named bot.
func (r *Roster) Get(name string) (*Bot, error) {
	b, ok := r.bots[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBot, name)
	}
	return b, nil
}

// Names returns the bot names sorted.
func (r *Roster) Names() []string {
	return slices.Clone(r.names)
}

// All returns every bot in name order.
func (r *Roster) All() []*Bot {
	out := make([]*Bot, len(r.names))
	for i, n := range r.names {
		out[i] = r.bots[n]
	}
	return out
}
