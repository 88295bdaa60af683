// ABOUTME: Conversation pack: tools that let bots read and post in channels and boards
// ABOUTME: Posting tools append through the store exactly as a human post would

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/2389/cool-squad/internal/conversation"
)

// ErrNotChannelMember is returned when a bot posts to a channel it is not active in.
var ErrNotChannelMember = errors.New("bot is not a member of channel")

const (
	defaultChannelLimit = 10
	defaultThreadLimit  = 5
)

// Conversations is the slice of the conversation store the tools need.
type Conversations interface {
	ListChannels() []string
	RecentChannelMessages(name string, n int) []conversation.Message
	IsBotActive(channel, bot string) bool
	AppendChannelMessage(ctx context.Context, channel string, msg conversation.Message) (conversation.Message, error)
	ListBoards() []conversation.Board
	GetBoard(id string) (conversation.Board, bool)
	GetBoardThreads(boardID string) []conversation.ThreadSummary
	GetThread(boardID, threadID string) (conversation.Thread, error)
	ThreadAt(boardID string, index int) (conversation.Thread, error)
	AppendThreadMessage(ctx context.Context, boardID, threadID string, msg conversation.Message) (conversation.Message, error)
	CreateThread(ctx context.Context, boardID, title string, first conversation.Message, tags []string) (conversation.Thread, error)
}

// ConversationPack creates the pack of channel and board tools.
func ConversationPack(c Conversations) *Pack {
	h := &conversationHandlers{store: c}
	return &Pack{
		ID: "conversation",
		Tools: []*Tool{
			{
				Definition: Definition{
					Name:        "read_channel_messages",
					Description: "Read recent messages from a chat channel",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"channel_name":{"type":"string","description":"Name of the channel to read"},"limit":{"type":"integer","description":"Maximum number of messages to return (default: 10)"}},"required":["channel_name"]}`),
				},
				Handler: h.ReadChannelMessages,
			},
			{
				Definition: Definition{
					Name:        "post_channel_message",
					Description: "Post a message to a chat channel you are a member of",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"channel_name":{"type":"string","description":"Name of the channel to post to"},"content":{"type":"string","description":"Message content"}},"required":["channel_name","content"]}`),
				},
				Handler: h.PostChannelMessage,
			},
			{
				Definition: Definition{
					Name:        "list_channels",
					Description: "List all chat channels",
					InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
				},
				Handler: h.ListChannels,
			},
			{
				Definition: Definition{
					Name:        "list_boards",
					Description: "List all available message boards",
					InputSchema: json.RawMessage(`{"type":"object","properties":{}}`),
				},
				Handler: h.ListBoards,
			},
			{
				Definition: Definition{
					Name:        "read_board_threads",
					Description: "Read thread titles from a message board, pinned first then newest",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"board_name":{"type":"string","description":"Name of the board to read"},"limit":{"type":"integer","description":"Maximum number of threads to return (default: 5)"}},"required":["board_name"]}`),
				},
				Handler: h.ReadBoardThreads,
			},
			{
				Definition: Definition{
					Name:        "read_thread",
					Description: "Read messages from a specific thread",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"board_name":{"type":"string","description":"Name of the board"},"thread_index":{"type":"integer","description":"Index of the thread (1-based)"},"thread_id":{"type":"string","description":"Thread id, instead of thread_index"}},"required":["board_name"]}`),
				},
				Handler: h.ReadThread,
			},
			{
				Definition: Definition{
					Name:        "post_thread_reply",
					Description: "Post a reply to a thread",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"board_name":{"type":"string","description":"Name of the board"},"thread_index":{"type":"integer","description":"Index of the thread (1-based)"},"thread_id":{"type":"string","description":"Thread id, instead of thread_index"},"content":{"type":"string","description":"Message content"}},"required":["board_name","content"]}`),
				},
				Handler: h.PostThreadReply,
			},
			{
				Definition: Definition{
					Name:        "create_thread",
					Description: "Create a new thread on a message board",
					InputSchema: json.RawMessage(`{"type":"object","properties":{"board_name":{"type":"string","description":"Name of the board"},"title":{"type":"string","description":"Thread title"},"content":{"type":"string","description":"First message content"},"tags":{"type":"array","items":{"type":"string"},"description":"Optional list of tags"}},"required":["board_name","title","content"]}`),
				},
				Handler: h.CreateThread,
			},
		},
	}
}

type conversationHandlers struct {
	store Conversations
}

func decode(input json.RawMessage, v any) error {
	if err := json.Unmarshal(input, v); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}
	return nil
}

// orDefault falls back to the resource the bot was triggered from.
func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

type channelInput struct {
	ChannelName string `json:"channel_name"`
	Limit       int    `json:"limit"`
	Content     string `json:"content"`
}

func (h *conversationHandlers) ReadChannelMessages(_ context.Context, inv Invocation, input json.RawMessage) (string, error) {
	var in channelInput
	if err := decode(input, &in); err != nil {
		return "", err
	}
	channel := orDefault(in.ChannelName, inv.Channel)
	if channel == "" {
		return "", fmt.Errorf("%w: channel_name is required", conversation.ErrInvalidArgument)
	}
	limit := in.Limit
	if limit == 0 {
		limit = defaultChannelLimit
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Recent messages in #%s:\n", channel)
	for _, m := range h.store.RecentChannelMessages(channel, limit) {
		fmt.Fprintf(&b, "[%s]: %s\n", m.Author, m.Content)
	}
	return b.String(), nil
}

func (h *conversationHandlers) PostChannelMessage(ctx context.Context, inv Invocation, input json.RawMessage) (string, error) {
	var in channelInput
	if err := decode(input, &in); err != nil {
		return "", err
	}
	channel := orDefault(in.ChannelName, inv.Channel)
	if !h.store.IsBotActive(channel, inv.Bot) {
		return "", fmt.Errorf("%w: %s is not in #%s", ErrNotChannelMember, inv.Bot, channel)
	}
	if _, err := h.store.AppendChannelMessage(ctx, channel, conversation.Message{
		Author:  inv.Bot,
		Content: in.Content,
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("message posted to #%s", channel), nil
}

func (h *conversationHandlers) ListChannels(context.Context, Invocation, json.RawMessage) (string, error) {
	channels := h.store.ListChannels()
	if len(channels) == 0 {
		return "No channels found.", nil
	}
	return "Channels: #" + strings.Join(channels, ", #"), nil
}

func (h *conversationHandlers) ListBoards(context.Context, Invocation, json.RawMessage) (string, error) {
	boards := h.store.ListBoards()
	if len(boards) == 0 {
		return "No message boards found.", nil
	}
	var b strings.Builder
	b.WriteString("Available message boards:\n")
	for _, board := range boards {
		if board.Description != "" {
			fmt.Fprintf(&b, "- %s: %s\n", board.ID, board.Description)
		} else {
			fmt.Fprintf(&b, "- %s\n", board.ID)
		}
	}
	return b.String(), nil
}

type boardInput struct {
	BoardName   string   `json:"board_name"`
	Limit       int      `json:"limit"`
	ThreadIndex int      `json:"thread_index"`
	ThreadID    string   `json:"thread_id"`
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	Tags        []string `json:"tags"`
}

func (h *conversationHandlers) ReadBoardThreads(_ context.Context, inv Invocation, input json.RawMessage) (string, error) {
	var in boardInput
	if err := decode(input, &in); err != nil {
		return "", err
	}
	board := orDefault(in.BoardName, inv.Board)
	if _, ok := h.store.GetBoard(board); !ok {
		return "", fmt.Errorf("board %q: %w", board, conversation.ErrNotFound)
	}
	limit := in.Limit
	if limit == 0 {
		limit = defaultThreadLimit
	}

	threads := h.store.GetBoardThreads(board)
	if len(threads) == 0 {
		return fmt.Sprintf("No threads found on board '%s'.", board), nil
	}
	if limit > 0 && len(threads) > limit {
		threads = threads[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Threads on board '%s':\n", board)
	for i, t := range threads {
		fmt.Fprintf(&b, "%d. %s", i+1, t.Title)
		if t.Pinned {
			b.WriteString(" [PINNED]")
		}
		if len(t.Tags) > 0 {
			fmt.Fprintf(&b, " [tags: %s]", strings.Join(t.Tags, ", "))
		}
		fmt.Fprintf(&b, " (%d messages)\n", t.MessageCount)
	}
	return b.String(), nil
}

// resolveThread finds a thread by id when given, else by 1-based position.
func (h *conversationHandlers) resolveThread(board string, in boardInput) (conversation.Thread, error) {
	if in.ThreadID != "" {
		return h.store.GetThread(board, in.ThreadID)
	}
	if _, ok := h.store.GetBoard(board); !ok {
		return conversation.Thread{}, fmt.Errorf("board %q: %w", board, conversation.ErrNotFound)
	}
	return h.store.ThreadAt(board, in.ThreadIndex)
}

func (h *conversationHandlers) ReadThread(_ context.Context, inv Invocation, input json.RawMessage) (string, error) {
	var in boardInput
	if err := decode(input, &in); err != nil {
		return "", err
	}
	board := orDefault(in.BoardName, inv.Board)
	if in.ThreadID == "" && in.ThreadIndex == 0 && inv.Thread != "" {
		in.ThreadID = inv.Thread
	}
	thread, err := h.resolveThread(board, in)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Thread: %s\n", thread.Title)
	if len(thread.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(thread.Tags, ", "))
	}
	if thread.Pinned {
		b.WriteString("Status: PINNED\n")
	}
	b.WriteString("\nMessages:\n")
	for _, m := range thread.Messages {
		fmt.Fprintf(&b, "[%s]: %s\n", m.Author, m.Content)
	}
	return b.String(), nil
}

func (h *conversationHandlers) PostThreadReply(ctx context.Context, inv Invocation, input json.RawMessage) (string, error) {
	var in boardInput
	if err := decode(input, &in); err != nil {
		return "", err
	}
	board := orDefault(in.BoardName, inv.Board)
	if in.ThreadID == "" && in.ThreadIndex == 0 && inv.Thread != "" {
		in.ThreadID = inv.Thread
	}
	thread, err := h.resolveThread(board, in)
	if err != nil {
		return "", err
	}
	if _, err := h.store.AppendThreadMessage(ctx, board, thread.ID, conversation.Message{
		Author:  inv.Bot,
		Content: in.Content,
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Reply posted to thread '%s' on board '%s'.", thread.Title, board), nil
}

func (h *conversationHandlers) CreateThread(ctx context.Context, inv Invocation, input json.RawMessage) (string, error) {
	var in boardInput
	if err := decode(input, &in); err != nil {
		return "", err
	}
	board := orDefault(in.BoardName, inv.Board)
	thread, err := h.store.CreateThread(ctx, board, in.Title, conversation.Message{
		Author:  inv.Bot,
		Content: in.Content,
	}, in.Tags)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created new thread '%s' on board '%s' (id %s).", thread.Title, board, thread.ID), nil
}
