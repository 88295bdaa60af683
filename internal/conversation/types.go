// ABOUTME: Conversation data model: messages, channels, boards and threads
// ABOUTME: Values returned from the store are copies and safe to retain

package conversation

import (
	"slices"
	"sort"
	"strings"
	"time"
)

// Message is a single chat or thread post. Immutable once appended.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Channel is a read-only view of a chat channel.
type Channel struct {
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
	Bots     []string  `json:"bots"`
}

// Board is a topic container for threads.
type Board struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Thread is a single discussion on a board.
type Thread struct {
	ID        string    `json:"id"`
	BoardID   string    `json:"board_id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	Pinned    bool      `json:"pinned"`
	Tags      []string  `json:"tags"`
	Messages  []Message `json:"messages"`
}

// ThreadSummary is a thread without its messages.
type ThreadSummary struct {
	ID           string    `json:"id"`
	BoardID      string    `json:"board_id"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	CreatedAt    time.Time `json:"created_at"`
	Pinned       bool      `json:"pinned"`
	Tags         []string  `json:"tags"`
	MessageCount int       `json:"message_count"`
}

// Summary strips the messages from a thread.
func (t Thread) Summary() ThreadSummary {
	return ThreadSummary{
		ID:           t.ID,
		BoardID:      t.BoardID,
		Title:        t.Title,
		Author:       t.Author,
		CreatedAt:    t.CreatedAt,
		Pinned:       t.Pinned,
		Tags:         slices.Clone(t.Tags),
		MessageCount: len(t.Messages),
	}
}

func (t Thread) clone() Thread {
	t.Tags = slices.Clone(t.Tags)
	t.Messages = slices.Clone(t.Messages)
	return t
}

// sortThreads orders threads pinned first, then newest first.
func sortThreads(threads []Thread) {
	sort.SliceStable(threads, func(i, j int) bool {
		if threads[i].Pinned != threads[j].Pinned {
			return threads[i].Pinned
		}
		if !threads[i].CreatedAt.Equal(threads[j].CreatedAt) {
			return threads[i].CreatedAt.After(threads[j].CreatedAt)
		}
		return threads[i].ID < threads[j].ID
	})
}

// normalizeTags trims, drops empties, de-duplicates and sorts.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || slices.Contains(out, tag) {
			continue
		}
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}
