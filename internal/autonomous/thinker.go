// ABOUTME: Scheduled autonomous thinking for idle bots, driven by a cron expression
// ABOUTME: Reflections land in the monologue; a few are spoken aloud in a channel

package autonomous

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"golang.org/x/sync/errgroup"

	"github.com/2389/cool-squad/internal/bot"
	"github.com/2389/cool-squad/internal/conversation"
)

const (
	DefaultSchedule    = "*/10 * * * *"
	DefaultQuietPeriod = 5 * time.Minute
	DefaultSpeakChance = 0.1
)

// Reflector produces a bot's private reflection. *bot.Engine implements it.
type Reflector interface {
	Reflect(ctx context.Context, name, prompt string) (string, error)
}

// Poster publishes a bot's message without triggering other bots.
// *router.Router implements it.
type Poster interface {
	PostAsBot(ctx context.Context, botName, channel, content string) (conversation.Message, error)
}

// Conversations is the slice of the conversation store the thinker reads.
type Conversations interface {
	ListChannels() []string
	IsBotActive(channel, bot string) bool
	EveryoneChannel() string
	Broadcaster() *conversation.Broadcaster
}

// Config configures a Thinker.
type Config struct {
	Engine Reflector
	Poster Poster
	Store  Conversations
	Roster *bot.Roster

	// Schedule is a cron expression. Empty uses DefaultSchedule.
	Schedule string
	// QuietPeriod skips bots that interacted more recently than this.
	QuietPeriod time.Duration
	// SpeakChance is the probability a reflection is posted. Zero uses
	// DefaultSpeakChance; negative disables speaking.
	SpeakChance float64

	// Rand drives speaking and channel choice. Nil seeds from the clock.
	Rand *rand.Rand
	// Now returns the current time. Nil uses time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Outcome is what one bot did in a cycle.
type Outcome struct {
	Bot     string
	Skipped string
	Thought string
	Channel string
	Err     error
}

// Thinker runs autonomous thinking cycles.
type Thinker struct {
	engine      Reflector
	poster      Poster
	store       Conversations
	roster      *bot.Roster
	schedule    string
	quietPeriod time.Duration
	speakChance float64
	now         func() time.Time
	logger      *slog.Logger

	randMu sync.Mutex
	rand   *rand.Rand

	wg sync.WaitGroup
}

// New validates the schedule and creates a thinker.
func New(cfg Config) (*Thinker, error) {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if !gronx.IsValid(schedule) {
		return nil, fmt.Errorf("invalid autonomous schedule: %q", schedule)
	}
	if cfg.Engine == nil || cfg.Store == nil || cfg.Roster == nil {
		return nil, fmt.Errorf("autonomous: engine, store and roster are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	quiet := cfg.QuietPeriod
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	chance := cfg.SpeakChance
	if chance == 0 {
		chance = DefaultSpeakChance
	}
	r := cfg.Rand
	if r == nil {
		seed := uint64(time.Now().UnixNano())
		r = rand.New(rand.NewPCG(seed, seed>>1))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Thinker{
		engine:      cfg.Engine,
		poster:      cfg.Poster,
		store:       cfg.Store,
		roster:      cfg.Roster,
		schedule:    schedule,
		quietPeriod: quiet,
		speakChance: chance,
		now:         now,
		logger:      logger.With("component", "autonomous"),
		rand:        r,
	}, nil
}

// Start runs cycles on the schedule until ctx is cancelled.
func (t *Thinker) Start(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.logger.Info("autonomous thinking started", "schedule", t.schedule)
		t.loop(ctx)
		t.logger.Info("autonomous thinking stopped")
	}()
}

// Wait blocks until the scheduler started by Start has returned.
func (t *Thinker) Wait() {
	t.wg.Wait()
}

func (t *Thinker) loop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(t.schedule, t.now().UTC(), false)
		if err != nil {
			t.logger.Error("computing next tick failed", "schedule", t.schedule, "error", err)
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			t.Cycle(ctx)
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// Cycle runs one thinking round for every eligible bot, in parallel.
func (t *Thinker) Cycle(ctx context.Context) []Outcome {
	bots := t.roster.All()
	outcomes := make([]Outcome, len(bots))
	channels := t.store.ListChannels()
	listened := t.listenedChannels(channels)

	var g errgroup.Group
	for i, b := range bots {
		outcomes[i].Bot = b.Name
		if reason := t.skipReason(b); reason != "" {
			outcomes[i].Skipped = reason
			continue
		}
		g.Go(func() error {
			outcomes[i] = t.think(ctx, b, channels, listened)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		switch {
		case o.Err != nil:
			t.logger.Warn("autonomous thought failed", "bot", o.Bot, "error", o.Err)
		case o.Channel != "":
			t.logger.Info("bot spoke unprompted", "bot", o.Bot, "channel", o.Channel)
		}
	}
	return outcomes
}

func (t *Thinker) skipReason(b *bot.Bot) string {
	if !b.Monologue.Enabled() {
		return "monologue disabled"
	}
	if last := b.Monologue.LastInteraction(); !last.IsZero() && t.now().Sub(last) < t.quietPeriod {
		return "recent interaction"
	}
	return ""
}

// listenedChannels returns channels with at least one open stream.
func (t *Thinker) listenedChannels(channels []string) []string {
	b := t.store.Broadcaster()
	var out []string
	for _, ch := range channels {
		if b.SubscriberCount(conversation.ChannelResource(ch)) > 0 {
			out = append(out, ch)
		}
	}
	return out
}

func (t *Thinker) think(ctx context.Context, b *bot.Bot, channels, listened []string) Outcome {
	out := Outcome{Bot: b.Name}
	thought, err := t.engine.Reflect(ctx, b.Name, prompt(b, channels, listened))
	if err != nil {
		out.Err = err
		return out
	}
	out.Thought = thought
	if thought == "" || t.poster == nil || !t.roll() {
		return out
	}

	channel := t.pickChannel(b.Name, channels, listened)
	if _, err := t.poster.PostAsBot(ctx, b.Name, channel, thought); err != nil {
		out.Err = fmt.Errorf("posting to #%s: %w", channel, err)
		return out
	}
	out.Channel = channel
	return out
}

func (t *Thinker) roll() bool {
	if t.speakChance < 0 {
		return false
	}
	t.randMu.Lock()
	defer t.randMu.Unlock()
	return t.rand.Float64() < t.speakChance
}

// pickChannel prefers channels someone is watching, then any channel the
// bot is active in, then the everyone channel.
func (t *Thinker) pickChannel(name string, channels, listened []string) string {
	active := func(list []string) []string {
		var out []string
		for _, ch := range list {
			if t.store.IsBotActive(ch, name) {
				out = append(out, ch)
			}
		}
		return out
	}
	for _, candidates := range [][]string{active(listened), active(channels)} {
		if len(candidates) > 0 {
			t.randMu.Lock()
			i := t.rand.IntN(len(candidates))
			t.randMu.Unlock()
			return candidates[i]
		}
	}
	return t.store.EveryoneChannel()
}

func prompt(b *bot.Bot, channels, listened []string) string {
	var sb strings.Builder
	sb.WriteString("you're currently idle and having an autonomous thought.\n")
	if len(channels) > 0 {
		fmt.Fprintf(&sb, "\nchannels that exist: %s\n", strings.Join(channels, ", "))
	}
	if len(listened) > 0 {
		fmt.Fprintf(&sb, "channels people are watching: %s\n", strings.Join(listened, ", "))
	}
	sb.WriteString("\ngenerate a brief thought. it could reflect on recent ")
	sb.WriteString("conversations, wonder about your interests, or consider checking the message boards. ")
	fmt.Fprintf(&sb, "keep it to 1-3 sentences and stay in character as %s.", b.Name)
	return sb.String()
}
