// Package autonomous gives idle bots a life between conversations.
//
// A Thinker wakes on a cron schedule and asks every bot whose monologue is
// enabled, and who has not interacted within the quiet period, for a brief
// reflection. Reflections are recorded in the bot's monologue. A small
// random share of them is posted, preferring channels someone is currently
// watching.
package autonomous
